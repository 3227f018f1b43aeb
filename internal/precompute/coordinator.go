package precompute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/observability/metrics"
	"github.com/wolfman30/availability-engine/internal/slotcache"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

var precomputeTracer = otel.Tracer("availability.internal.precompute")

const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"

	defaultDaysAhead   = 14
	maxDaysAhead       = 366
	defaultMarkerTTL   = 10 * time.Minute
	defaultSendTimeout = 3 * time.Second
	defaultJobTimeout  = 5 * time.Minute
)

// Runner warms the cache for one organizer and reports entries written.
type Runner interface {
	Precompute(ctx context.Context, organizerID string, daysAhead int) (int, error)
}

// Ack is returned to callers of Start before any work happens.
type Ack struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// Coordinator accepts precompute requests and executes queued jobs. A
// per-organizer in-flight marker ensures at most one job per organizer.
type Coordinator struct {
	inflight slotcache.InFlight
	queue    Queue
	jobs     JobStore
	runner   Runner
	metrics  *metrics.SlotMetrics
	logger   *logging.Logger

	markerTTL   time.Duration
	sendTimeout time.Duration
	jobTimeout  time.Duration

	mu     sync.Mutex
	failed map[string]int
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMetrics records job outcomes.
func WithMetrics(m *metrics.SlotMetrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithMarkerTTL bounds how long a crashed job can block its organizer.
func WithMarkerTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.markerTTL = ttl
		}
	}
}

// WithJobTimeout bounds a single Execute call.
func WithJobTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.jobTimeout = d
		}
	}
}

func NewCoordinator(inflight slotcache.InFlight, queue Queue, jobs JobStore, runner Runner, logger *logging.Logger, opts ...CoordinatorOption) *Coordinator {
	if inflight == nil {
		panic("precompute: in-flight marker cannot be nil")
	}
	if queue == nil {
		panic("precompute: queue cannot be nil")
	}
	if jobs == nil {
		panic("precompute: job store cannot be nil")
	}
	if runner == nil {
		panic("precompute: runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{
		inflight:    inflight,
		queue:       queue,
		jobs:        jobs,
		runner:      runner,
		logger:      logger,
		markerTTL:   defaultMarkerTTL,
		sendTimeout: defaultSendTimeout,
		jobTimeout:  defaultJobTimeout,
		failed:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start acknowledges a precompute request for organizerID. When a job for
// the organizer is already in flight the existing job id is returned and
// nothing is enqueued.
func (c *Coordinator) Start(ctx context.Context, organizerID string, daysAhead int) (Ack, error) {
	if daysAhead == 0 {
		daysAhead = defaultDaysAhead
	}
	if daysAhead < 0 || daysAhead > maxDaysAhead {
		return Ack{}, availability.Invalid("days_ahead", "must be between 1 and %d", maxDaysAhead)
	}

	jobID := uuid.NewString()
	acquired, holder, err := c.inflight.Acquire(ctx, organizerID, jobID, c.markerTTL)
	if err != nil {
		return Ack{}, fmt.Errorf("precompute: acquire marker: %w", err)
	}
	if !acquired {
		c.metrics.ObservePrecompute(StatusAlreadyRunning, 0)
		return Ack{Status: StatusAlreadyRunning, JobID: holder}, nil
	}

	if err := c.enqueue(ctx, jobPayload{JobID: jobID, OrganizerID: organizerID, DaysAhead: daysAhead}); err != nil {
		if relErr := c.inflight.Release(context.WithoutCancel(ctx), organizerID, jobID); relErr != nil {
			c.logger.Warn("failed to release precompute marker", "error", relErr, "organizer_id", organizerID)
		}
		return Ack{}, err
	}
	c.logger.Info("precompute job accepted", "organizer_id", organizerID, "job_id", jobID, "days_ahead", daysAhead)
	return Ack{Status: StatusStarted, JobID: jobID}, nil
}

func (c *Coordinator) enqueue(ctx context.Context, p jobPayload) error {
	if err := c.jobs.PutPending(ctx, &Job{JobID: p.JobID, OrganizerID: p.OrganizerID, DaysAhead: p.DaysAhead}); err != nil {
		return fmt.Errorf("precompute: record job: %w", err)
	}
	body, err := encodePayload(p)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.queue.Send(sendCtx, body); err != nil {
		if markErr := c.jobs.MarkFailed(context.WithoutCancel(ctx), p.JobID, "enqueue failed"); markErr != nil {
			c.logger.Warn("failed to mark job failed", "error", markErr, "job_id", p.JobID)
		}
		return fmt.Errorf("precompute: enqueue job: %w", err)
	}
	return nil
}

// Execute runs one dequeued job and releases the organizer's marker. The
// error is informational: failures are recorded on the job and retried by
// the next scheduled pass.
func (c *Coordinator) Execute(ctx context.Context, p jobPayload) error {
	ctx, span := precomputeTracer.Start(ctx, "precompute.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("availability.organizer_id", p.OrganizerID),
		attribute.String("availability.job_id", p.JobID),
	)

	defer func() {
		if err := c.inflight.Release(context.WithoutCancel(ctx), p.OrganizerID, p.JobID); err != nil {
			c.logger.Warn("failed to release precompute marker", "error", err, "organizer_id", p.OrganizerID)
		}
	}()

	if err := c.jobs.MarkRunning(ctx, p.JobID); err != nil && !errors.Is(err, ErrJobNotFound) {
		c.logger.Warn("failed to mark job running", "error", err, "job_id", p.JobID)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()
	start := time.Now()
	entries, err := c.runner.Precompute(runCtx, p.OrganizerID, p.DaysAhead)
	if err != nil {
		span.RecordError(err)
		c.rememberFailure(p.OrganizerID, p.DaysAhead)
		c.metrics.ObservePrecompute("failed", entries)
		c.logger.Error("precompute job failed", "error", err, "organizer_id", p.OrganizerID, "job_id", p.JobID)
		if markErr := c.jobs.MarkFailed(context.WithoutCancel(ctx), p.JobID, err.Error()); markErr != nil {
			c.logger.Warn("failed to mark job failed", "error", markErr, "job_id", p.JobID)
		}
		return err
	}

	c.clearFailure(p.OrganizerID)
	c.metrics.ObservePrecompute("completed", entries)
	c.logger.Info("precompute job completed",
		"organizer_id", p.OrganizerID,
		"job_id", p.JobID,
		"entries", entries,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err := c.jobs.MarkCompleted(ctx, p.JobID, entries); err != nil {
		c.logger.Warn("failed to mark job completed", "error", err, "job_id", p.JobID)
	}
	return nil
}

// Job returns the stored status of jobID.
func (c *Coordinator) Job(ctx context.Context, jobID string) (*Job, error) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return nil, availability.NotFound("job", jobID)
	}
	return job, err
}

func (c *Coordinator) rememberFailure(orgID string, days int) {
	c.mu.Lock()
	c.failed[orgID] = days
	c.mu.Unlock()
}

func (c *Coordinator) clearFailure(orgID string) {
	c.mu.Lock()
	delete(c.failed, orgID)
	c.mu.Unlock()
}

// Failed lists organizers whose last job failed, with the days requested.
func (c *Coordinator) Failed() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

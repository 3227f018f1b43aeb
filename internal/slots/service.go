// Package slots answers slot queries. It reads through the slot cache,
// computing missing days from a rule snapshot, and applies bookings and the
// time-dependent filters after the cache so cached entries stay valid for as
// long as their generation and rule version are current.
package slots

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/bookings"
	"github.com/wolfman30/availability-engine/internal/observability/metrics"
	"github.com/wolfman30/availability-engine/internal/slotcache"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

var slotsTracer = otel.Tracer("availability.internal.slots")

const (
	defaultCacheTTL    = 6 * time.Hour
	defaultBudget      = 300 * time.Millisecond
	defaultHorizonDays = 60
	maxQueryDays       = 62
)

// RuleSource is the read side of the rule store.
type RuleSource interface {
	ResolveOrganizer(ctx context.Context, key string) (*availability.Organizer, error)
	Snapshot(ctx context.Context, orgID string) (*availability.RuleSet, error)
}

// Service computes and caches slots.
type Service struct {
	rules    RuleSource
	bookings bookings.Source
	cache    slotcache.Cache
	metrics  *metrics.SlotMetrics
	logger   *logging.Logger

	now         func() time.Time
	ttl         time.Duration
	budget      time.Duration
	horizonDays int
	timezones   []string

	flight singleflight.Group
}

// Option configures the service.
type Option func(*Service)

func WithMetrics(m *metrics.SlotMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now for notice and horizon checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCacheTTL sets how long computed days stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBudget bounds the computation of one query. Zero disables the bound.
func WithBudget(d time.Duration) Option {
	return func(s *Service) { s.budget = d }
}

// WithDefaultHorizon applies to organizers and event types without their own.
func WithDefaultHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// WithPrecomputeTimezones lists the request timezones warmed by Precompute
// in addition to the organizer's own.
func WithPrecomputeTimezones(tz ...string) Option {
	return func(s *Service) { s.timezones = append([]string(nil), tz...) }
}

func NewService(rules RuleSource, source bookings.Source, cache slotcache.Cache, logger *logging.Logger, opts ...Option) *Service {
	if rules == nil {
		panic("slots: rule source required")
	}
	if source == nil {
		panic("slots: booking source required")
	}
	if cache == nil {
		panic("slots: cache required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		rules:       rules,
		bookings:    source,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
		ttl:         defaultCacheTTL,
		budget:      defaultBudget,
		horizonDays: defaultHorizonDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InviteeSpec describes one party of a multi-invitee query. Organizer is
// set when the invitee publishes availability rules of their own.
type InviteeSpec struct {
	Timezone        string `json:"timezone" validate:"required"`
	ReasonableStart int    `json:"reasonable_hours_start" validate:"min=0,max=24"`
	ReasonableEnd   int    `json:"reasonable_hours_end" validate:"min=0,max=24"`
	Organizer       string `json:"organizer_slug,omitempty"`
}

// Query is one slot request.
type Query struct {
	Organizer     string
	EventType     string
	StartDate     availability.Date
	EndDate       availability.Date
	Timezone      string
	AttendeeCount int
	Invitees      []InviteeSpec
}

// Response is the JSON body returned to the booking pages.
type Response struct {
	AvailableSlots    []availability.Slot `json:"available_slots"`
	CacheHit          bool                `json:"cache_hit"`
	TotalSlots        int                 `json:"total_slots"`
	ComputationTimeMS int64               `json:"computation_time_ms"`
	MultiInviteeMode  bool                `json:"multi_invitee_mode,omitempty"`
	InviteeTimezones  []string            `json:"invitee_timezones,omitempty"`
	Degraded          bool                `json:"degraded,omitempty"`
	Generation        int64               `json:"generation"`
}

// target is a resolved organizer and event type under one snapshot.
type target struct {
	org        availability.Organizer
	rs         *availability.RuleSet
	et         availability.EventType
	engine     *availability.Engine
	generation int64
}

// load captures the generation first so a mutation racing the snapshot
// produces entries stamped with the older generation, which are misses.
func (s *Service) load(ctx context.Context, orgKey, etKey string) (*target, error) {
	org, err := s.rules.ResolveOrganizer(ctx, orgKey)
	if err != nil {
		return nil, err
	}
	gen, err := s.cache.Generation(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("slots: read generation: %w", err)
	}
	rs, err := s.rules.Snapshot(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	et, ok := rs.EventType(etKey)
	if !ok || !et.Active {
		return nil, &availability.Error{Kind: availability.ErrNotFound, Field: "event_type", Organizer: org.Slug, Detail: etKey}
	}
	engine, err := availability.NewEngine(rs, et)
	if err != nil {
		return nil, availability.WithContext(err, org.Slug, et.Slug)
	}
	return &target{org: rs.Organizer, rs: rs, et: et, engine: engine, generation: gen}, nil
}

// Query answers a slot request, reading through the cache.
func (s *Service) Query(ctx context.Context, q Query) (*Response, error) {
	started := time.Now()
	mode := "single"
	if len(q.Invitees) > 0 {
		mode = "multi"
	}
	ctx, span := slotsTracer.Start(ctx, "slots.query")
	defer span.End()
	span.SetAttributes(
		attribute.String("availability.organizer", q.Organizer),
		attribute.String("availability.event_type", q.EventType),
		attribute.String("availability.mode", mode),
	)

	resp, err := s.query(ctx, q, started)
	seconds := time.Since(started).Seconds()
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveQuery(mode, "error", seconds)
		return nil, err
	}
	outcome := "ok"
	if resp.Degraded {
		outcome = "degraded"
	}
	s.metrics.ObserveQuery(mode, outcome, seconds)
	span.SetAttributes(
		attribute.Bool("availability.cache_hit", resp.CacheHit),
		attribute.Int("availability.total_slots", resp.TotalSlots),
	)
	return resp, nil
}

func (s *Service) query(ctx context.Context, q Query, started time.Time) (*Response, error) {
	t, err := s.load(ctx, q.Organizer, q.EventType)
	if err != nil {
		return nil, err
	}
	tzName := q.Timezone
	if tzName == "" {
		tzName = t.org.Timezone
	}
	loc, err := availability.LoadLocation(tzName)
	if err != nil {
		return nil, availability.WithContext(err, t.org.Slug, t.et.Slug)
	}

	now := s.now()
	horizon := t.rs.HorizonDays(t.et, s.horizonDays)
	today := availability.DateOf(now.In(loc))
	if err := availability.CheckHorizon(today, q.StartDate, q.EndDate, horizon); err != nil {
		return nil, availability.WithContext(err, t.org.Slug, t.et.Slug)
	}
	if days := q.StartDate.DaysUntil(q.EndDate) + 1; days > maxQueryDays {
		return nil, &availability.Error{Kind: availability.ErrInvalidRequest, Field: "end_date", Organizer: t.org.Slug, EventType: t.et.Slug,
			Detail: fmt.Sprintf("at most %d days per query", maxQueryDays)}
	}

	var (
		out      []availability.Slot
		allHits  = true
		degraded bool
		last     = q.StartDate
	)
	for d := q.StartDate; !d.After(q.EndDate); d = d.AddDays(1) {
		if s.budget > 0 && d != q.StartDate && time.Since(started) > s.budget {
			degraded = true
			s.logger.Warn("slot computation budget exhausted",
				"organizer_id", t.org.ID, "event_type_id", t.et.ID, "computed_through", d.AddDays(-1).String())
			break
		}
		slots, hit, err := s.day(ctx, t, d, tzName, loc)
		if err != nil {
			return nil, availability.WithContext(err, t.org.Slug, t.et.Slug)
		}
		allHits = allHits && hit
		out = append(out, slots...)
		last = d
	}

	if len(out) > 0 {
		window := availability.BookingWindow(availability.Interval{
			Start: q.StartDate.Bounds(loc).Start, End: last.Bounds(loc).End,
		})
		bs, err := s.bookings.ListBetween(ctx, t.org.ID, window)
		if err != nil {
			return nil, fmt.Errorf("slots: list bookings: %w", err)
		}
		out = t.engine.ApplyBookings(out, bs)
	}

	notAfter := time.Time{}
	if horizon > 0 {
		notAfter = now.Add(time.Duration(horizon) * 24 * time.Hour)
	}
	out = availability.FilterBookable(out, now.Add(time.Duration(t.et.MinNoticeMinutes)*time.Minute), notAfter)
	out = availability.FilterSpots(out, q.AttendeeCount)

	resp := &Response{CacheHit: allHits, Degraded: degraded, Generation: t.generation}
	if len(q.Invitees) > 0 {
		invitees, zones, err := s.invitees(ctx, q, loc)
		if err != nil {
			return nil, availability.WithContext(err, t.org.Slug, t.et.Slug)
		}
		out = availability.Aggregate(out, invitees)
		resp.MultiInviteeMode = true
		resp.InviteeTimezones = zones
	}

	for i := range out {
		out[i] = out[i].In(loc)
	}
	if out == nil {
		out = []availability.Slot{}
	}
	resp.AvailableSlots = out
	resp.TotalSlots = len(out)
	resp.ComputationTimeMS = time.Since(started).Milliseconds()
	return resp, nil
}

// day returns the booking-free slots of one request-local date. An entry
// from an older rule version is a miss even when its generation is current,
// which covers a mutation whose invalidation failed.
func (s *Service) day(ctx context.Context, t *target, d availability.Date, tzName string, loc *time.Location) ([]availability.Slot, bool, error) {
	key := slotcache.Key{OrganizerID: t.org.ID, EventTypeID: t.et.ID, Date: d, Timezone: tzName}
	entry, hit, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("slot cache read failed", "error", err, "organizer_id", t.org.ID, "key", key.String())
	case hit && entry.RuleVersion == t.rs.Version:
		return entry.Slots, true, nil
	case hit:
		s.logger.Warn("slot cache entry from stale rule version",
			"organizer_id", t.org.ID, "key", key.String(), "entry_version", entry.RuleVersion, "rule_version", t.rs.Version)
	}

	flightKey := fmt.Sprintf("%s@%d.%d", key.String(), t.generation, t.rs.Version)
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		slots := t.engine.Slots(key.Date.Bounds(loc), nil)
		if err := s.store(ctx, key, slots, t.generation, t.rs.Version); err != nil {
			s.logger.Warn("slot cache write failed", "error", err, "organizer_id", t.org.ID, "key", key.String())
		}
		return slots, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]availability.Slot), false, nil
}

func (s *Service) store(ctx context.Context, key slotcache.Key, slots []availability.Slot, gen, version int64) error {
	return s.cache.Put(ctx, slotcache.Entry{
		Key:         key,
		Slots:       slots,
		Generation:  gen,
		RuleVersion: version,
		ComputedAt:  s.now().UTC(),
	}, s.ttl)
}

// EnsureOrganizer resolves key to an organizer id.
func (s *Service) EnsureOrganizer(ctx context.Context, key string) (string, error) {
	org, err := s.rules.ResolveOrganizer(ctx, key)
	if err != nil {
		return "", err
	}
	return org.ID, nil
}

// ClearCache invalidates every cached day of the organizer.
func (s *Service) ClearCache(ctx context.Context, orgKey string) (int64, error) {
	orgID, err := s.EnsureOrganizer(ctx, orgKey)
	if err != nil {
		return 0, err
	}
	gen, err := s.cache.Invalidate(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("slots: clear cache: %w", err)
	}
	s.logger.Info("slot cache cleared", "organizer_id", orgID, "cache_generation", gen)
	return gen, nil
}

// Precompute warms every active event type of the organizer for daysAhead
// days in the organizer timezone and each configured timezone. It returns
// the number of entries written.
func (s *Service) Precompute(ctx context.Context, orgID string, daysAhead int) (int, error) {
	if daysAhead <= 0 {
		daysAhead = 1
	}
	ctx, span := slotsTracer.Start(ctx, "slots.precompute")
	defer span.End()
	span.SetAttributes(attribute.String("availability.organizer_id", orgID))

	gen, err := s.cache.Generation(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("slots: read generation: %w", err)
	}
	rs, err := s.rules.Snapshot(ctx, orgID)
	if err != nil {
		return 0, err
	}

	zones := []string{rs.Organizer.Timezone}
	for _, tz := range s.timezones {
		if tz != "" && !slices.Contains(zones, tz) {
			zones = append(zones, tz)
		}
	}

	written := 0
	for _, et := range rs.ActiveEventTypes() {
		engine, err := availability.NewEngine(rs, et)
		if err != nil {
			return written, availability.WithContext(err, orgID, et.ID)
		}
		days := daysAhead
		if h := rs.HorizonDays(et, s.horizonDays); h > 0 && days > h+1 {
			days = h + 1
		}
		for _, tz := range zones {
			loc, err := availability.LoadLocation(tz)
			if err != nil {
				s.logger.Warn("skipping precompute timezone", "timezone", tz, "error", err)
				continue
			}
			first := availability.DateOf(s.now().In(loc))
			for d := first; !d.After(first.AddDays(days - 1)); d = d.AddDays(1) {
				if err := ctx.Err(); err != nil {
					return written, err
				}
				key := slotcache.Key{OrganizerID: orgID, EventTypeID: et.ID, Date: d, Timezone: tz}
				if err := s.store(ctx, key, engine.Slots(d.Bounds(loc), nil), gen, rs.Version); err != nil {
					return written, fmt.Errorf("slots: precompute %s: %w", key, err)
				}
				written++
			}
		}
	}
	span.SetAttributes(attribute.Int("availability.entries_written", written))
	return written, nil
}

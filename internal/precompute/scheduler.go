package precompute

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/availability-engine/pkg/logging"
)

// OrganizerLister enumerates organizers to refresh.
type OrganizerLister interface {
	ListOrganizerIDs(ctx context.Context) ([]string, error)
}

// Scheduler periodically requests a precompute for every organizer,
// retrying organizers whose last job failed first.
type Scheduler struct {
	coordinator *Coordinator
	organizers  OrganizerLister
	daysAhead   int
	logger      *logging.Logger
}

func NewScheduler(coordinator *Coordinator, organizers OrganizerLister, daysAhead int, logger *logging.Logger) *Scheduler {
	if coordinator == nil {
		panic("precompute: coordinator cannot be nil")
	}
	if organizers == nil {
		panic("precompute: organizer lister cannot be nil")
	}
	if daysAhead <= 0 {
		daysAhead = defaultDaysAhead
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{coordinator: coordinator, organizers: organizers, daysAhead: daysAhead, logger: logger}
}

// PassResult summarises one scheduling pass.
type PassResult struct {
	Started        int
	AlreadyRunning int
	Retried        int
	Errors         int
}

// Pass enqueues one job per organizer.
func (s *Scheduler) Pass(ctx context.Context) (PassResult, error) {
	var res PassResult
	ids, err := s.organizers.ListOrganizerIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("precompute: list organizers: %w", err)
	}

	failed := s.coordinator.Failed()
	seen := make(map[string]bool, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range sortedKeys(failed) {
		order = append(order, id)
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			order = append(order, id)
		}
	}

	for _, id := range order {
		days := s.daysAhead
		if d, ok := failed[id]; ok {
			res.Retried++
			if d > days {
				days = d
			}
		}
		ack, err := s.coordinator.Start(ctx, id, days)
		if err != nil {
			res.Errors++
			s.logger.Warn("scheduled precompute not started", "error", err, "organizer_id", id)
			continue
		}
		if ack.Status == StatusAlreadyRunning {
			res.AlreadyRunning++
		} else {
			res.Started++
		}
	}
	return res, nil
}

// Run calls Pass immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.Pass(ctx)
		if err != nil {
			s.logger.Error("precompute pass failed", "error", err)
		} else {
			s.logger.Info("precompute pass finished",
				"started", res.Started,
				"already_running", res.AlreadyRunning,
				"retried", res.Retried,
				"errors", res.Errors,
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package slots

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// invitees builds the aggregator input. Every invitee is validated before
// any lookup starts. Invitees that are organizers get their duration-less
// open time for the query window, resolved concurrently.
func (s *Service) invitees(ctx context.Context, q Query, loc *time.Location) ([]availability.Invitee, []string, error) {
	window := availability.Interval{
		Start: q.StartDate.Bounds(loc).Start,
		End:   q.EndDate.Bounds(loc).End,
	}
	out := make([]availability.Invitee, len(q.Invitees))
	zones := make([]string, len(q.Invitees))

	for i, spec := range q.Invitees {
		inv, err := availability.NewInvitee(spec.Timezone, spec.ReasonableStart, spec.ReasonableEnd)
		if err != nil {
			return nil, nil, err
		}
		out[i] = inv
		zones[i] = spec.Timezone
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range q.Invitees {
		if spec.Organizer == "" {
			continue
		}
		g.Go(func() error {
			open, err := s.openTime(gctx, spec.Organizer, window)
			if err != nil {
				return err
			}
			out[i].Open = open
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, zones, nil
}

// openTime resolves the unscoped open intervals of an organizer around window.
func (s *Service) openTime(ctx context.Context, orgKey string, window availability.Interval) ([]availability.Interval, error) {
	org, err := s.rules.ResolveOrganizer(ctx, orgKey)
	if err != nil {
		return nil, fmt.Errorf("slots: invitee %s: %w", orgKey, err)
	}
	rs, err := s.rules.Snapshot(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("slots: invitee %s: %w", orgKey, err)
	}
	r, err := availability.NewResolver(rs, "")
	if err != nil {
		return nil, err
	}
	open := r.Between(window)
	if open == nil {
		open = []availability.Interval{}
	}
	return open, nil
}

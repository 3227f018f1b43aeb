package slots

import (
	"context"

	"github.com/wolfman30/availability-engine/internal/availability"
)

const statsWindowDays = 7

// Stats summarises an organizer's configuration and near-term availability.
type Stats struct {
	OrganizerID      string         `json:"organizer_id"`
	Generation       int64          `json:"cache_generation"`
	RuleVersion      int64          `json:"rule_version"`
	EventTypes       int            `json:"event_types"`
	ActiveEventTypes int            `json:"active_event_types"`
	Rules            int            `json:"rules"`
	Overrides        int            `json:"overrides"`
	BlockedTimes     int            `json:"blocked_times"`
	RecurringBlocks  int            `json:"recurring_blocks"`
	UpcomingSlots    map[string]int `json:"upcoming_slots"`
	CachedDays       int            `json:"cached_days"`
	TotalDays        int            `json:"total_days"`
}

// Stats counts rule entities and the slots of each active event type over
// the next week. The slot counts read through the cache.
func (s *Service) Stats(ctx context.Context, orgID string) (*Stats, error) {
	gen, err := s.cache.Generation(ctx, orgID)
	if err != nil {
		return nil, err
	}
	rs, err := s.rules.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		OrganizerID:     orgID,
		Generation:      gen,
		RuleVersion:     rs.Version,
		EventTypes:      len(rs.EventTypes),
		Rules:           len(rs.Rules),
		Overrides:       len(rs.Overrides),
		BlockedTimes:    len(rs.BlockedTimes),
		RecurringBlocks: len(rs.RecurringBlocks),
		UpcomingSlots:   make(map[string]int),
	}

	loc, err := availability.LoadLocation(rs.Organizer.Timezone)
	if err != nil {
		return nil, availability.WithContext(err, orgID, "")
	}
	today := availability.DateOf(s.now().In(loc))
	for _, et := range rs.ActiveEventTypes() {
		st.ActiveEventTypes++
		days := statsWindowDays
		if h := rs.HorizonDays(et, s.horizonDays); h > 0 && h+1 < days {
			days = h + 1
		}
		resp, err := s.Query(ctx, Query{
			Organizer: rs.Organizer.Slug,
			EventType: et.ID,
			StartDate: today,
			EndDate:   today.AddDays(days - 1),
			Timezone:  rs.Organizer.Timezone,
		})
		if err != nil {
			return nil, err
		}
		st.UpcomingSlots[et.Slug] = resp.TotalSlots
		st.TotalDays += days
		if resp.CacheHit {
			st.CachedDays += days
		}
	}
	return st, nil
}

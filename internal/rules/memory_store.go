package rules

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/availability-engine/internal/availability"
)

type orgState struct {
	organizer  availability.Organizer
	version    int64
	eventTypes map[string]availability.EventType
	rules      map[string]availability.AvailabilityRule
	overrides  map[string]availability.DateOverrideRule
	blocked    map[string]availability.BlockedTime
	recurring  map[string]availability.RecurringBlockedTime
	buffer     *availability.BufferTime
}

// MemoryStore keeps rules in process memory. Used for tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	orgs map[string]*orgState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orgs: make(map[string]*orgState)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) state(orgID string) (*orgState, error) {
	st, ok := m.orgs[orgID]
	if !ok {
		return nil, availability.NotFound("organizer", orgID)
	}
	return st, nil
}

// mutate runs fn under the write lock and bumps the rule version on success.
func (m *MemoryStore) mutate(orgID string, fn func(st *orgState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.state(orgID)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	st.version++
	return nil
}

func (m *MemoryStore) CreateOrganizer(_ context.Context, o *availability.Organizer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orgs[o.ID]; exists {
		return availability.Invalid("id", "organizer %s already exists", o.ID)
	}
	for _, st := range m.orgs {
		if st.organizer.Slug == o.Slug {
			return availability.Invalid("slug", "slug %q is taken", o.Slug)
		}
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	m.orgs[o.ID] = &orgState{
		organizer:  *o,
		eventTypes: make(map[string]availability.EventType),
		rules:      make(map[string]availability.AvailabilityRule),
		overrides:  make(map[string]availability.DateOverrideRule),
		blocked:    make(map[string]availability.BlockedTime),
		recurring:  make(map[string]availability.RecurringBlockedTime),
	}
	return nil
}

func (m *MemoryStore) UpdateOrganizer(_ context.Context, o *availability.Organizer) error {
	return m.mutate(o.ID, func(st *orgState) error {
		o.CreatedAt = st.organizer.CreatedAt
		o.UpdatedAt = time.Now().UTC()
		st.organizer = *o
		return nil
	})
}

func (m *MemoryStore) GetOrganizer(_ context.Context, id string) (*availability.Organizer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}
	o := st.organizer
	return &o, nil
}

func (m *MemoryStore) GetOrganizerBySlug(_ context.Context, slug string) (*availability.Organizer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.orgs {
		if st.organizer.Slug == slug {
			o := st.organizer
			return &o, nil
		}
	}
	return nil, availability.NotFound("organizer", slug)
}

func (m *MemoryStore) ListOrganizerIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.orgs))
	for id := range m.orgs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) Snapshot(_ context.Context, orgID string) (*availability.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, err := m.state(orgID)
	if err != nil {
		return nil, err
	}
	rs := &availability.RuleSet{
		Organizer: st.organizer,
		Version:   st.version,
		Buffer:    availability.DefaultBuffer(),
	}
	if st.buffer != nil {
		rs.Buffer = *st.buffer
	}
	for _, et := range st.eventTypes {
		rs.EventTypes = append(rs.EventTypes, et)
	}
	for _, r := range st.rules {
		r.EventTypeScope = slices.Clone(r.EventTypeScope)
		rs.Rules = append(rs.Rules, r)
	}
	for _, o := range st.overrides {
		o.EventTypeScope = slices.Clone(o.EventTypeScope)
		rs.Overrides = append(rs.Overrides, o)
	}
	for _, b := range st.blocked {
		rs.BlockedTimes = append(rs.BlockedTimes, b)
	}
	for _, r := range st.recurring {
		rs.RecurringBlocks = append(rs.RecurringBlocks, r)
	}
	sortRuleSet(rs)
	return rs, nil
}

// sortRuleSet orders entities deterministically so snapshots compare equal.
func sortRuleSet(rs *availability.RuleSet) {
	sort.Slice(rs.EventTypes, func(i, j int) bool { return rs.EventTypes[i].Slug < rs.EventTypes[j].Slug })
	sort.Slice(rs.Rules, func(i, j int) bool {
		a, b := rs.Rules[i], rs.Rules[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	sort.Slice(rs.Overrides, func(i, j int) bool {
		if c := rs.Overrides[i].Date.Compare(rs.Overrides[j].Date); c != 0 {
			return c < 0
		}
		return rs.Overrides[i].ID < rs.Overrides[j].ID
	})
	sort.Slice(rs.BlockedTimes, func(i, j int) bool {
		a, b := rs.BlockedTimes[i], rs.BlockedTimes[j]
		if !a.StartDatetime.Equal(b.StartDatetime) {
			return a.StartDatetime.Before(b.StartDatetime)
		}
		return a.ID < b.ID
	})
	sort.Slice(rs.RecurringBlocks, func(i, j int) bool {
		a, b := rs.RecurringBlocks[i], rs.RecurringBlocks[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.ID < b.ID
	})
}

func (m *MemoryStore) CreateEventType(_ context.Context, et *availability.EventType) error {
	return m.mutate(et.OrganizerID, func(st *orgState) error {
		for _, existing := range st.eventTypes {
			if existing.Slug == et.Slug {
				return availability.Invalid("slug", "event type slug %q is taken", et.Slug)
			}
		}
		st.eventTypes[et.ID] = *et
		return nil
	})
}

func (m *MemoryStore) UpdateEventType(_ context.Context, et *availability.EventType) error {
	return m.mutate(et.OrganizerID, func(st *orgState) error {
		if _, ok := st.eventTypes[et.ID]; !ok {
			return availability.NotFound("event_type", et.ID)
		}
		st.eventTypes[et.ID] = *et
		return nil
	})
}

func (m *MemoryStore) DeleteEventType(_ context.Context, orgID, id string) error {
	return m.mutate(orgID, func(st *orgState) error {
		if _, ok := st.eventTypes[id]; !ok {
			return availability.NotFound("event_type", id)
		}
		delete(st.eventTypes, id)
		return nil
	})
}

func (m *MemoryStore) CreateRule(_ context.Context, r *availability.AvailabilityRule) error {
	return m.mutate(r.OrganizerID, func(st *orgState) error {
		st.rules[r.ID] = *r
		return nil
	})
}

func (m *MemoryStore) UpdateRule(_ context.Context, r *availability.AvailabilityRule) error {
	return m.mutate(r.OrganizerID, func(st *orgState) error {
		if _, ok := st.rules[r.ID]; !ok {
			return availability.NotFound("rule", r.ID)
		}
		st.rules[r.ID] = *r
		return nil
	})
}

func (m *MemoryStore) DeleteRule(_ context.Context, orgID, id string) error {
	return m.mutate(orgID, func(st *orgState) error {
		if _, ok := st.rules[id]; !ok {
			return availability.NotFound("rule", id)
		}
		delete(st.rules, id)
		return nil
	})
}

func (m *MemoryStore) CreateOverride(_ context.Context, o *availability.DateOverrideRule) error {
	return m.mutate(o.OrganizerID, func(st *orgState) error {
		st.overrides[o.ID] = *o
		return nil
	})
}

func (m *MemoryStore) UpdateOverride(_ context.Context, o *availability.DateOverrideRule) error {
	return m.mutate(o.OrganizerID, func(st *orgState) error {
		if _, ok := st.overrides[o.ID]; !ok {
			return availability.NotFound("override", o.ID)
		}
		st.overrides[o.ID] = *o
		return nil
	})
}

func (m *MemoryStore) DeleteOverride(_ context.Context, orgID, id string) error {
	return m.mutate(orgID, func(st *orgState) error {
		if _, ok := st.overrides[id]; !ok {
			return availability.NotFound("override", id)
		}
		delete(st.overrides, id)
		return nil
	})
}

func (m *MemoryStore) CreateBlockedTime(_ context.Context, b *availability.BlockedTime) error {
	return m.mutate(b.OrganizerID, func(st *orgState) error {
		st.blocked[b.ID] = *b
		return nil
	})
}

func (m *MemoryStore) UpdateBlockedTime(_ context.Context, b *availability.BlockedTime) error {
	return m.mutate(b.OrganizerID, func(st *orgState) error {
		if _, ok := st.blocked[b.ID]; !ok {
			return availability.NotFound("blocked_time", b.ID)
		}
		st.blocked[b.ID] = *b
		return nil
	})
}

func (m *MemoryStore) DeleteBlockedTime(_ context.Context, orgID, id string) error {
	return m.mutate(orgID, func(st *orgState) error {
		if _, ok := st.blocked[id]; !ok {
			return availability.NotFound("blocked_time", id)
		}
		delete(st.blocked, id)
		return nil
	})
}

func (m *MemoryStore) ReplaceExternalBlocks(_ context.Context, orgID string, blocks []availability.BlockedTime) error {
	return m.mutate(orgID, func(st *orgState) error {
		for id, b := range st.blocked {
			if b.Source == availability.BlockSourceExternalSync {
				delete(st.blocked, id)
			}
		}
		for _, b := range blocks {
			st.blocked[b.ID] = b
		}
		return nil
	})
}

func (m *MemoryStore) CreateRecurringBlock(_ context.Context, r *availability.RecurringBlockedTime) error {
	return m.mutate(r.OrganizerID, func(st *orgState) error {
		st.recurring[r.ID] = *r
		return nil
	})
}

func (m *MemoryStore) UpdateRecurringBlock(_ context.Context, r *availability.RecurringBlockedTime) error {
	return m.mutate(r.OrganizerID, func(st *orgState) error {
		if _, ok := st.recurring[r.ID]; !ok {
			return availability.NotFound("recurring_block", r.ID)
		}
		st.recurring[r.ID] = *r
		return nil
	})
}

func (m *MemoryStore) DeleteRecurringBlock(_ context.Context, orgID, id string) error {
	return m.mutate(orgID, func(st *orgState) error {
		if _, ok := st.recurring[id]; !ok {
			return availability.NotFound("recurring_block", id)
		}
		delete(st.recurring, id)
		return nil
	})
}

func (m *MemoryStore) SaveBuffer(_ context.Context, orgID string, b availability.BufferTime) error {
	return m.mutate(orgID, func(st *orgState) error {
		st.buffer = &b
		return nil
	})
}

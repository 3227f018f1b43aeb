package availability

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// Organizer owns availability rules and receives bookings.
type Organizer struct {
	ID             string    `json:"id"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	Timezone       string    `json:"timezone"`
	MaxHorizonDays int       `json:"max_horizon_days"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EventType defines duration, notice and capacity of a bookable meeting.
type EventType struct {
	ID               string `json:"id"`
	OrganizerID      string `json:"organizer_id"`
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	DurationMinutes  int    `json:"duration_minutes"`
	MinNoticeMinutes int    `json:"min_notice_minutes"`
	MaxHorizonDays   int    `json:"max_horizon_days"`
	Capacity         int    `json:"capacity"`
	Active           bool   `json:"active"`
}

func (e EventType) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Seats returns the capacity, treating unset as a one-on-one event.
func (e EventType) Seats() int {
	if e.Capacity < 1 {
		return 1
	}
	return e.Capacity
}

// Scope lists event type ids a rule applies to; empty means all.
type Scope []string

// Matches reports whether a rule with this scope applies to eventTypeID.
// An empty eventTypeID only matches unscoped rules.
func (s Scope) Matches(eventTypeID string) bool {
	if len(s) == 0 {
		return true
	}
	return eventTypeID != "" && slices.Contains(s, eventTypeID)
}

// ScopeAll is the wire form of an unscoped rule.
const ScopeAll = "all"

func (s Scope) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return json.Marshal(ScopeAll)
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON accepts "all", null, or a list of event type ids.
func (s *Scope) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if v != ScopeAll {
			return Invalid("event_type_scope", "expected %q or a list of event type ids", ScopeAll)
		}
		*s = nil
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	if len(ids) == 0 || slices.Contains(ids, ScopeAll) {
		*s = nil
		return nil
	}
	*s = ids
	return nil
}

// AvailabilityRule is a weekly open window. EndTime <= StartTime spans midnight;
// 00:00-00:00 is the whole day.
type AvailabilityRule struct {
	ID             string       `json:"id"`
	OrganizerID    string       `json:"organizer_id"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	StartTime      Clock        `json:"start_time"`
	EndTime        Clock        `json:"end_time"`
	EventTypeScope Scope        `json:"event_type_scope"`
	Active         bool         `json:"active"`
}

// SpansMidnight reports whether the window ends on the following day.
func (r AvailabilityRule) SpansMidnight() bool { return r.EndTime <= r.StartTime }

// DateOverrideRule replaces every weekly rule on Date.
type DateOverrideRule struct {
	ID             string `json:"id"`
	OrganizerID    string `json:"organizer_id"`
	Date           Date   `json:"date"`
	IsAvailable    bool   `json:"is_available"`
	StartTime      *Clock `json:"start_time,omitempty"`
	EndTime        *Clock `json:"end_time,omitempty"`
	EventTypeScope Scope  `json:"event_type_scope"`
	Active         bool   `json:"active"`
}

// BlockSource records where a BlockedTime came from.
type BlockSource string

const (
	BlockSourceManual       BlockSource = "manual"
	BlockSourceExternalSync BlockSource = "external-sync"
)

// BlockedTime is an absolute span that is always subtracted.
type BlockedTime struct {
	ID            string      `json:"id"`
	OrganizerID   string      `json:"organizer_id"`
	Title         string      `json:"title,omitempty"`
	StartDatetime time.Time   `json:"start_datetime"`
	EndDatetime   time.Time   `json:"end_datetime"`
	Source        BlockSource `json:"source"`
	ExternalID    string      `json:"external_id,omitempty"`
	Active        bool        `json:"active"`
}

func (b BlockedTime) Interval() Interval {
	return Interval{Start: b.StartDatetime, End: b.EndDatetime}.UTC()
}

// RecurringBlockedTime is a weekly subtraction bounded by optional dates.
type RecurringBlockedTime struct {
	ID          string       `json:"id"`
	OrganizerID string       `json:"organizer_id"`
	Name        string       `json:"name"`
	DayOfWeek   time.Weekday `json:"day_of_week"`
	StartTime   Clock        `json:"start_time"`
	EndTime     Clock        `json:"end_time"`
	StartDate   *Date        `json:"start_date,omitempty"`
	EndDate     *Date        `json:"end_date,omitempty"`
	Active      bool         `json:"active"`
}

// AppliesOn reports whether the block starts on d.
func (r RecurringBlockedTime) AppliesOn(d Date) bool {
	if !r.Active || d.Weekday() != r.DayOfWeek {
		return false
	}
	if r.StartDate != nil && d.Before(*r.StartDate) {
		return false
	}
	if r.EndDate != nil && d.After(*r.EndDate) {
		return false
	}
	return true
}

// BufferTime governs slot spacing for an organizer. Values are minutes.
type BufferTime struct {
	BufferBefore        int `json:"buffer_before"`
	BufferAfter         int `json:"buffer_after"`
	MinimumGap          int `json:"minimum_gap"`
	SlotIntervalMinutes int `json:"slot_interval_minutes"`
}

// DefaultSlotInterval applies when no buffer row exists.
const DefaultSlotInterval = 30

// DefaultBuffer returns the settings used before an organizer saves any.
func DefaultBuffer() BufferTime {
	return BufferTime{SlotIntervalMinutes: DefaultSlotInterval}
}

func (b BufferTime) Before() time.Duration { return time.Duration(b.BufferBefore) * time.Minute }
func (b BufferTime) After() time.Duration  { return time.Duration(b.BufferAfter) * time.Minute }
func (b BufferTime) Gap() time.Duration    { return time.Duration(b.MinimumGap) * time.Minute }

// Step returns the grid step, never less than one minute.
func (b BufferTime) Step() time.Duration {
	if b.SlotIntervalMinutes <= 0 {
		return DefaultSlotInterval * time.Minute
	}
	return time.Duration(b.SlotIntervalMinutes) * time.Minute
}

// Booking is an existing meeting supplied by the booking store.
type Booking struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	EventTypeID string    `json:"event_type_id"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	Attendees   int       `json:"attendees"`
}

func (b Booking) Interval() Interval { return Interval{Start: b.Start, End: b.End}.UTC() }

// Seats returns attendees, counting an unset value as one.
func (b Booking) Seats() int {
	if b.Attendees < 1 {
		return 1
	}
	return b.Attendees
}

// Slot is a bookable window produced per query.
type Slot struct {
	Start           time.Time `json:"start_time"`
	End             time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	AvailableSpots  int       `json:"available_spots,omitempty"`
	FairnessScore   *float64  `json:"fairness_score,omitempty"`
}

// In converts slot times to loc for presentation.
func (s Slot) In(loc *time.Location) Slot {
	s.Start = s.Start.In(loc)
	s.End = s.End.In(loc)
	return s
}

// RuleSet is a versioned snapshot of everything an organizer has configured.
type RuleSet struct {
	Organizer       Organizer              `json:"organizer"`
	Version         int64                  `json:"version"`
	EventTypes      []EventType            `json:"event_types"`
	Rules           []AvailabilityRule     `json:"rules"`
	Overrides       []DateOverrideRule     `json:"overrides"`
	BlockedTimes    []BlockedTime          `json:"blocked_times"`
	RecurringBlocks []RecurringBlockedTime `json:"recurring_blocks"`
	Buffer          BufferTime             `json:"buffer"`
}

// EventType finds an event type by id or slug.
func (rs *RuleSet) EventType(key string) (EventType, bool) {
	for _, et := range rs.EventTypes {
		if et.ID == key || et.Slug == key {
			return et, true
		}
	}
	return EventType{}, false
}

// ActiveEventTypes returns the event types open for booking.
func (rs *RuleSet) ActiveEventTypes() []EventType {
	var out []EventType
	for _, et := range rs.EventTypes {
		if et.Active {
			out = append(out, et)
		}
	}
	return out
}

// HorizonDays resolves the event type horizon, falling back to the organizer's.
func (rs *RuleSet) HorizonDays(et EventType, fallback int) int {
	if et.MaxHorizonDays > 0 {
		return et.MaxHorizonDays
	}
	if rs.Organizer.MaxHorizonDays > 0 {
		return rs.Organizer.MaxHorizonDays
	}
	return fallback
}

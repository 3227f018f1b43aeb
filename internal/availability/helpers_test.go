package availability

import (
	"testing"
	"time"
)

func utc(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts.UTC()
}

func span(t *testing.T, start, end string) Interval {
	t.Helper()
	return Interval{Start: utc(t, start), End: utc(t, end)}
}

func weekly(day time.Weekday, start, end string, scope ...string) AvailabilityRule {
	return AvailabilityRule{
		ID:             "rule-" + start,
		DayOfWeek:      day,
		StartTime:      MustClock(start),
		EndTime:        MustClock(end),
		EventTypeScope: scope,
		Active:         true,
	}
}

func clockPtr(s string) *Clock {
	c := MustClock(s)
	return &c
}

func datePtr(s string) *Date {
	d := MustDate(s)
	return &d
}

func newRuleSet(tz string, rules ...AvailabilityRule) *RuleSet {
	return &RuleSet{
		Organizer: Organizer{ID: "org-1", Slug: "ada", Timezone: tz, MaxHorizonDays: 60},
		EventTypes: []EventType{
			{ID: "evt-a", OrganizerID: "org-1", Slug: "intro", DurationMinutes: 30, Capacity: 1, Active: true},
		},
		Rules:  rules,
		Buffer: DefaultBuffer(),
	}
}

func starts(slots []Slot, loc *time.Location) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.In(loc).Format("2006-01-02 15:04"))
	}
	return out
}

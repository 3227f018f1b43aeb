package availability

import "time"

// DayIntervals is the open time of one organizer-local date.
type DayIntervals struct {
	Date      Date       `json:"date"`
	Intervals []Interval `json:"intervals"`
}

// Resolver turns a rule snapshot into per-day open intervals for one event type.
type Resolver struct {
	rs          *RuleSet
	eventTypeID string
	loc         *time.Location
	blocks      []Interval
	overrides   map[Date][]DateOverrideRule
}

// NewResolver prepares a resolver. An empty eventTypeID considers unscoped
// rules only.
func NewResolver(rs *RuleSet, eventTypeID string) (*Resolver, error) {
	loc, err := LoadLocation(rs.Organizer.Timezone)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidConfiguration, Field: "timezone", Organizer: rs.Organizer.ID, Detail: rs.Organizer.Timezone}
	}
	r := &Resolver{
		rs:          rs,
		eventTypeID: eventTypeID,
		loc:         loc,
		overrides:   make(map[Date][]DateOverrideRule),
	}
	var blocks []Interval
	for _, b := range rs.BlockedTimes {
		if b.Active {
			blocks = append(blocks, b.Interval())
		}
	}
	r.blocks = Merge(blocks)
	for _, o := range rs.Overrides {
		if o.Active && o.EventTypeScope.Matches(eventTypeID) {
			r.overrides[o.Date] = append(r.overrides[o.Date], o)
		}
	}
	return r, nil
}

// Location is the organizer timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) window(d Date, start, end Clock) Interval {
	iv := Interval{Start: d.At(start, r.loc)}
	if end <= start {
		iv.End = d.AddDays(1).At(end, r.loc)
	} else {
		iv.End = d.At(end, r.loc)
	}
	return iv.UTC()
}

// sourceWindows returns the unclipped open windows that begin on d and whether
// they came from an override. Any unavailable override closes the date.
func (r *Resolver) sourceWindows(d Date) ([]Interval, bool) {
	if overrides, ok := r.overrides[d]; ok {
		var out []Interval
		for _, o := range overrides {
			if !o.IsAvailable {
				return nil, true
			}
			if o.StartTime != nil && o.EndTime != nil {
				out = append(out, r.window(d, *o.StartTime, *o.EndTime))
			}
		}
		return out, true
	}

	weekday := d.Weekday()
	var out []Interval
	for _, rule := range r.rs.Rules {
		if !rule.Active || rule.DayOfWeek != weekday || !rule.EventTypeScope.Matches(r.eventTypeID) {
			continue
		}
		out = append(out, r.window(d, rule.StartTime, rule.EndTime))
	}
	return out, false
}

func (r *Resolver) recurringWindows(d Date) []Interval {
	var out []Interval
	for _, rb := range r.rs.RecurringBlocks {
		if rb.AppliesOn(d) {
			out = append(out, r.window(d, rb.StartTime, rb.EndTime))
		}
	}
	return out
}

// Day resolves the open intervals of organizer-local date d. The result is
// merged, sorted and lies within d's local midnight bounds.
func (r *Resolver) Day(d Date) []Interval {
	bounds := d.Bounds(r.loc)

	own, overridden := r.sourceWindows(d)
	open := Clip(own, bounds)
	if !overridden {
		prev, _ := r.sourceWindows(d.AddDays(-1))
		open = append(open, Clip(prev, bounds)...)
	}
	if len(open) == 0 {
		return nil
	}

	cuts := append(r.recurringWindows(d), r.recurringWindows(d.AddDays(-1))...)
	cuts = append(cuts, Clip(r.blocks, bounds)...)
	return Subtract(open, cuts)
}

// Range resolves every date in [from, to].
func (r *Resolver) Range(from, to Date) []DayIntervals {
	var out []DayIntervals
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, DayIntervals{Date: d, Intervals: r.Day(d)})
	}
	return out
}

// Between returns merged open time for every local date touching window, with
// one day of padding on each side so callers can test containment near edges.
func (r *Resolver) Between(window Interval) []Interval {
	first := DateOf(window.Start.In(r.loc)).AddDays(-1)
	last := DateOf(window.End.Add(-time.Nanosecond).In(r.loc)).AddDays(1)
	var all []Interval
	for _, day := range r.Range(first, last) {
		all = append(all, day.Intervals...)
	}
	return Merge(all)
}

package availability

import "time"

// Engine computes slots for one event type of one rule snapshot.
type Engine struct {
	rs       *RuleSet
	et       EventType
	resolver *Resolver
}

// NewEngine binds a rule snapshot to an event type.
func NewEngine(rs *RuleSet, et EventType) (*Engine, error) {
	resolver, err := NewResolver(rs, et.ID)
	if err != nil {
		return nil, err
	}
	return &Engine{rs: rs, et: et, resolver: resolver}, nil
}

// Resolver exposes the underlying interval resolver.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// BookingWindow widens window to cover bookings that can affect its slots.
func BookingWindow(window Interval) Interval {
	return Interval{Start: window.Start.Add(-48 * time.Hour), End: window.End.Add(48 * time.Hour)}
}

// Slots returns the slots whose start falls within window. Organizer-local
// days around the window are resolved so slots crossing midnight or the
// window edge are judged against the full open time.
func (e *Engine) Slots(window Interval, bookings []Booking) []Slot {
	loc := e.resolver.Location()
	first := DateOf(window.Start.In(loc))
	last := DateOf(window.End.Add(-time.Nanosecond).In(loc))

	var days []DayIntervals
	var open []Interval
	for _, day := range e.resolver.Range(first.AddDays(-2), last.AddDays(2)) {
		open = append(open, day.Intervals...)
		if !day.Date.Before(first) && !day.Date.After(last) {
			days = append(days, day)
		}
	}

	slots := Generate(GenerateParams{
		Days:      days,
		Open:      open,
		Bookings:  bookings,
		Buffer:    e.rs.Buffer,
		EventType: e.et,
	})
	out := slots[:0]
	for _, s := range slots {
		if !s.Start.Before(window.Start) && s.Start.Before(window.End) {
			out = append(out, s)
		}
	}
	return out
}

// ApplyBookings checks slots produced by Slots(window, nil) against
// bookings. The result equals Slots(window, bookings), so booking-free slots
// can be cached and bookings applied on every read.
func (e *Engine) ApplyBookings(slots []Slot, bookings []Booking) []Slot {
	if len(bookings) == 0 {
		return slots
	}
	p := GenerateParams{Bookings: bookings, Buffer: e.rs.Buffer, EventType: e.et}
	before, after := p.Buffer.Before(), p.Buffer.After()
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		slot := Interval{Start: s.Start, End: s.End}
		padded := Interval{Start: s.Start.Add(-before), End: s.End.Add(after)}
		spots, ok := seatsLeft(slot, padded, p)
		if !ok {
			continue
		}
		s.AvailableSpots = spots
		out = append(out, s)
	}
	return out
}

// CheckHorizon rejects a date window that ends after today plus horizonDays.
func CheckHorizon(today, start, end Date, horizonDays int) error {
	if end.Before(start) {
		return BadRequest("end_date", "end_date %s is before start_date %s", end, start)
	}
	if horizonDays <= 0 {
		return nil
	}
	boundary := today.AddDays(horizonDays)
	if end.After(boundary) {
		return &Error{
			Kind:     ErrOutOfRange,
			Field:    "end_date",
			Boundary: boundary.String(),
			Detail:   "requested window exceeds the scheduling horizon",
		}
	}
	return nil
}

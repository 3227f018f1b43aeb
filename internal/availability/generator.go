package availability

import (
	"sort"
	"time"
)

// GenerateParams carries what the slot generator needs for a set of days.
type GenerateParams struct {
	// Days are the candidate days; slot starts are drawn from their intervals.
	Days []DayIntervals
	// Open is the organizer's open time around Days, used for containment.
	Open      []Interval
	Bookings  []Booking
	Buffer    BufferTime
	EventType EventType
}

// Generate slices open time into slots. Candidate starts walk each interval
// from interval start plus buffer_before in slot_interval steps; a candidate
// is kept when [start-buffer_before, end+buffer_after] fits in open time and
// clears every booking, and no booking ends within minimum_gap before it or
// starts within minimum_gap after it.
func Generate(p GenerateParams) []Slot {
	duration := p.EventType.Duration()
	if duration <= 0 {
		return nil
	}
	open := Merge(p.Open)
	before, after := p.Buffer.Before(), p.Buffer.After()
	step := p.Buffer.Step()

	var out []Slot
	seen := make(map[int64]struct{})
	for _, day := range p.Days {
		for _, iv := range day.Intervals {
			for t := iv.Start.Add(before); t.Before(iv.End); t = t.Add(step) {
				slot := Interval{Start: t, End: t.Add(duration)}
				padded := Interval{Start: t.Add(-before), End: slot.End.Add(after)}
				if !AnyCovers(open, padded) {
					continue
				}
				spots, ok := seatsLeft(slot, padded, p)
				if !ok {
					continue
				}
				key := t.Unix()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, Slot{
					Start:           slot.Start.UTC(),
					End:             slot.End.UTC(),
					DurationMinutes: p.EventType.DurationMinutes,
					AvailableSpots:  spots,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// seatsLeft checks the candidate against bookings. Bookings of the same group
// event at the same start consume seats instead of blocking.
func seatsLeft(slot, padded Interval, p GenerateParams) (int, bool) {
	seats := p.EventType.Seats()
	gap := p.Buffer.Gap()
	taken := 0
	for _, b := range p.Bookings {
		bi := b.Interval()
		if seats > 1 && b.EventTypeID == p.EventType.ID && bi.Start.Equal(slot.Start) {
			taken += b.Seats()
			continue
		}
		if bi.Overlaps(padded) {
			return 0, false
		}
		if gap > 0 && violatesGap(slot, bi, gap) {
			return 0, false
		}
	}
	left := seats - taken
	if left <= 0 {
		return 0, false
	}
	return left, true
}

func violatesGap(slot, booked Interval, gap time.Duration) bool {
	if !booked.End.After(slot.Start) && slot.Start.Sub(booked.End) < gap {
		return true
	}
	if !booked.Start.Before(slot.End) && booked.Start.Sub(slot.End) < gap {
		return true
	}
	return false
}

// FilterBookable drops slots starting before notBefore or after notAfter.
// A zero notAfter disables the upper bound.
func FilterBookable(slots []Slot, notBefore, notAfter time.Time) []Slot {
	out := slots[:0:0]
	for _, s := range slots {
		if s.Start.Before(notBefore) {
			continue
		}
		if !notAfter.IsZero() && s.Start.After(notAfter) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FilterSpots drops slots with fewer than attendees free seats.
func FilterSpots(slots []Slot, attendees int) []Slot {
	if attendees <= 1 {
		return slots
	}
	out := slots[:0:0]
	for _, s := range slots {
		if s.AvailableSpots >= attendees {
			out = append(out, s)
		}
	}
	return out
}

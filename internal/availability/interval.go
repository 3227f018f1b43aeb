package availability

import (
	"sort"
	"time"
)

// Interval is a half-open span [Start, End) of absolute time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Empty() bool { return !iv.End.After(iv.Start) }

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

// Overlaps reports whether the two spans share any instant.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Covers reports whether o lies entirely within iv.
func (iv Interval) Covers(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// UTC normalizes both ends to UTC.
func (iv Interval) UTC() Interval {
	return Interval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

// Merge sorts the spans, joins overlapping or adjacent ones and drops empties.
func Merge(in []Interval) []Interval {
	spans := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			spans = append(spans, iv.UTC())
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	out := []Interval{spans[0]}
	for _, iv := range spans[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every span in cut from base. Both inputs may be unsorted.
func Subtract(base, cut []Interval) []Interval {
	base = Merge(base)
	cut = Merge(cut)
	if len(cut) == 0 {
		return base
	}
	var out []Interval
	for _, iv := range base {
		cur := iv
		for _, c := range cut {
			if !c.End.After(cur.Start) {
				continue
			}
			if !c.Start.Before(cur.End) {
				break
			}
			if c.Start.After(cur.Start) {
				out = append(out, Interval{Start: cur.Start, End: c.Start})
			}
			cur.Start = c.End
			if cur.Empty() {
				break
			}
		}
		if !cur.Empty() {
			out = append(out, cur)
		}
	}
	return out
}

// Intersect returns the instants present in every set.
func Intersect(sets ...[]Interval) []Interval {
	if len(sets) == 0 {
		return nil
	}
	acc := Merge(sets[0])
	for _, set := range sets[1:] {
		other := Merge(set)
		var out []Interval
		i, j := 0, 0
		for i < len(acc) && j < len(other) {
			start := maxTime(acc[i].Start, other[j].Start)
			end := minTime(acc[i].End, other[j].End)
			if end.After(start) {
				out = append(out, Interval{Start: start, End: end})
			}
			if acc[i].End.Before(other[j].End) {
				i++
			} else {
				j++
			}
		}
		acc = out
		if len(acc) == 0 {
			return nil
		}
	}
	return acc
}

// Clip keeps the parts of in that fall inside window.
func Clip(in []Interval, window Interval) []Interval {
	return Intersect(in, []Interval{window})
}

// AnyCovers reports whether some merged span in set covers target.
func AnyCovers(set []Interval, target Interval) bool {
	i := sort.Search(len(set), func(i int) bool { return set[i].End.After(target.Start) })
	return i < len(set) && set[i].Covers(target)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

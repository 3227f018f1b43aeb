package availability

import (
	"math"
	"sort"
	"time"
)

// Default reasonable hours for an invitee who does not state any.
const (
	DefaultReasonableStart = 9
	DefaultReasonableEnd   = 17
)

// Invitee is one party of a group query.
type Invitee struct {
	Timezone        string `json:"timezone"`
	ReasonableStart int    `json:"reasonable_hours_start"`
	ReasonableEnd   int    `json:"reasonable_hours_end"`
	// Open is set when the invitee publishes rules; nil leaves them unconstrained.
	Open []Interval `json:"-"`

	loc *time.Location
}

// NewInvitee validates the timezone and hours. Zero hours take the defaults.
func NewInvitee(timezone string, start, end int) (Invitee, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return Invitee{}, err
	}
	if start == 0 && end == 0 {
		start, end = DefaultReasonableStart, DefaultReasonableEnd
	}
	if start < 0 || start > 24 || end < 0 || end > 24 {
		return Invitee{}, BadRequest("reasonable_hours", "hours must be within 0..24 for %s", timezone)
	}
	return Invitee{Timezone: timezone, ReasonableStart: start, ReasonableEnd: end, loc: loc}, nil
}

// localHours returns fractional hours since local midnight.
func localHours(t time.Time, loc *time.Location) float64 {
	lt := t.In(loc)
	return float64(lt.Hour()) + float64(lt.Minute())/60 + float64(lt.Second())/3600
}

func circularDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	return math.Min(d, 24-d)
}

// hourDeviation is how many hours h lies outside the invitee's window.
func (i Invitee) hourDeviation(h float64) float64 {
	ws, we := float64(i.ReasonableStart), float64(i.ReasonableEnd)
	if ws == we || (ws == 0 && we == 24) {
		return 0
	}
	inside := false
	if ws < we {
		inside = h >= ws && h <= we
	} else {
		inside = h >= ws || h <= we
	}
	if inside {
		return 0
	}
	return math.Min(circularDistance(h, ws), circularDistance(h, we))
}

// Deviation is the larger of the start and end deviation of s.
func (i Invitee) Deviation(s Slot) float64 {
	loc := i.loc
	if loc == nil {
		loc = time.UTC
	}
	start := i.hourDeviation(localHours(s.Start, loc))
	end := localHours(s.End, loc)
	if end == 0 && s.End.After(s.Start) {
		end = 24
	}
	return math.Max(start, i.hourDeviation(end))
}

// FairnessScore is 1 minus the worst normalized deviation across invitees.
func FairnessScore(s Slot, invitees []Invitee) float64 {
	worst := 0.0
	for _, inv := range invitees {
		worst = math.Max(worst, inv.Deviation(s))
	}
	score := 1 - worst/12
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*1000) / 1000
}

// Aggregate keeps slots that fit every constrained invitee's open time,
// scores them, and sorts by score descending then earliest start.
func Aggregate(slots []Slot, invitees []Invitee) []Slot {
	var constraints [][]Interval
	for _, inv := range invitees {
		if inv.Open != nil {
			constraints = append(constraints, Merge(inv.Open))
		}
	}

	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		iv := Interval{Start: s.Start, End: s.End}.UTC()
		fits := true
		for _, open := range constraints {
			if !AnyCovers(open, iv) {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		score := FairnessScore(s, invitees)
		s.FairnessScore = &score
		out = append(out, s)
	}
	sort.SliceStable(out, func(a, b int) bool {
		sa, sb := *out[a].FairnessScore, *out[b].FairnessScore
		if sa != sb {
			return sa > sb
		}
		return out[a].Start.Before(out[b].Start)
	})
	return out
}

package rules

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// ParseICS converts the busy events of an iCalendar feed into external-sync
// blocked times. Recurring events are expanded inside window; cancelled and
// transparent events are skipped.
func ParseICS(r io.Reader, orgID string, loc *time.Location, window availability.Interval) ([]availability.BlockedTime, error) {
	dec := ical.NewDecoder(r)
	var out []availability.BlockedTime
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, availability.Invalid("ics", "decode calendar: %v", err)
		}
		for _, ev := range cal.Events() {
			blocks, err := eventBlocks(ev, orgID, loc, window)
			if err != nil {
				return nil, err
			}
			out = append(out, blocks...)
		}
	}
	return out, nil
}

func eventBlocks(ev ical.Event, orgID string, loc *time.Location, window availability.Interval) ([]availability.BlockedTime, error) {
	if status, _ := ev.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
		return nil, nil
	}
	if transp, _ := ev.Props.Text(ical.PropTransparency); strings.EqualFold(transp, "TRANSPARENT") {
		return nil, nil
	}
	uid, _ := ev.Props.Text(ical.PropUID)
	if uid == "" {
		uid = uuid.NewString()
	}
	summary, _ := ev.Props.Text(ical.PropSummary)

	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil, availability.Invalid("ics", "event %s: start: %v", uid, err)
	}
	// DateTimeEnd falls back to DURATION, or one day for all-day events.
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return nil, availability.Invalid("ics", "event %s: end: %v", uid, err)
	}
	if !end.After(start) {
		return nil, nil
	}
	length := end.Sub(start)

	starts := []time.Time{start}
	set, err := ev.RecurrenceSet(loc)
	if err != nil {
		return nil, availability.Invalid("ics", "event %s: recurrence: %v", uid, err)
	}
	if set != nil {
		starts = set.Between(window.Start.Add(-length), window.End, true)
	}

	var out []availability.BlockedTime
	for _, s := range starts {
		iv := availability.Interval{Start: s, End: s.Add(length)}.UTC()
		if !iv.Overlaps(window) {
			continue
		}
		externalID := uid
		if set != nil {
			externalID = fmt.Sprintf("%s@%s", uid, iv.Start.Format(time.RFC3339))
		}
		out = append(out, availability.BlockedTime{
			ID:            uuid.NewString(),
			OrganizerID:   orgID,
			Title:         summary,
			StartDatetime: iv.Start,
			EndDatetime:   iv.End,
			Source:        availability.BlockSourceExternalSync,
			ExternalID:    externalID,
			Active:        true,
		})
	}
	return out, nil
}

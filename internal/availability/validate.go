package availability

import "time"

func validWeekday(d time.Weekday) bool { return d >= time.Sunday && d <= time.Saturday }

// validWindow rejects zero-length windows other than the 00:00-00:00 full day.
func validWindow(start, end Clock) *Error {
	if !start.Valid() {
		return Invalid("start_time", "time of day out of range")
	}
	if !end.Valid() {
		return Invalid("end_time", "time of day out of range")
	}
	if start == end && start != 0 {
		return Invalid("end_time", "start_time and end_time are equal (%s); use 00:00-00:00 for a full day", start)
	}
	return nil
}

// ValidateOrganizer checks timezone and horizon.
func ValidateOrganizer(o Organizer) error {
	if _, err := LoadLocation(o.Timezone); err != nil {
		return Invalid("timezone", "unknown timezone %q", o.Timezone)
	}
	if o.MaxHorizonDays < 0 {
		return Invalid("max_horizon_days", "must not be negative")
	}
	return nil
}

// ValidateEventType checks duration, notice, horizon and capacity.
func ValidateEventType(e EventType) error {
	switch {
	case e.DurationMinutes <= 0 || e.DurationMinutes > minutesPerDay:
		return Invalid("duration_minutes", "must be between 1 and %d", minutesPerDay)
	case e.MinNoticeMinutes < 0:
		return Invalid("min_notice_minutes", "must not be negative")
	case e.MaxHorizonDays < 0:
		return Invalid("max_horizon_days", "must not be negative")
	case e.Capacity < 0:
		return Invalid("capacity", "must not be negative")
	}
	return nil
}

// ValidateRule checks a weekly availability rule.
func ValidateRule(r AvailabilityRule) error {
	if !validWeekday(r.DayOfWeek) {
		return Invalid("day_of_week", "must be 0..6, got %d", r.DayOfWeek)
	}
	if err := validWindow(r.StartTime, r.EndTime); err != nil {
		return err
	}
	return nil
}

// ValidateOverride checks a date override. An available override must carry
// explicit hours.
func ValidateOverride(o DateOverrideRule) error {
	if o.Date.IsZero() {
		return Invalid("date", "date is required")
	}
	if (o.StartTime == nil) != (o.EndTime == nil) {
		return Invalid("end_time", "start_time and end_time must be set together")
	}
	if !o.IsAvailable {
		return nil
	}
	if o.StartTime == nil {
		return Invalid("start_time", "available override on %s requires start_time and end_time", o.Date)
	}
	if err := validWindow(*o.StartTime, *o.EndTime); err != nil {
		return err
	}
	return nil
}

// ValidateBlockedTime checks an absolute block.
func ValidateBlockedTime(b BlockedTime) error {
	if b.StartDatetime.IsZero() || b.EndDatetime.IsZero() {
		return Invalid("start_datetime", "start_datetime and end_datetime are required")
	}
	if !b.EndDatetime.After(b.StartDatetime) {
		return Invalid("end_datetime", "must be after start_datetime")
	}
	switch b.Source {
	case BlockSourceManual, BlockSourceExternalSync:
	default:
		return Invalid("source", "unknown source %q", b.Source)
	}
	return nil
}

// ValidateRecurringBlock checks a weekly block and its date bounds.
func ValidateRecurringBlock(r RecurringBlockedTime) error {
	if !validWeekday(r.DayOfWeek) {
		return Invalid("day_of_week", "must be 0..6, got %d", r.DayOfWeek)
	}
	if err := validWindow(r.StartTime, r.EndTime); err != nil {
		return err
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return Invalid("end_date", "must not be before start_date")
	}
	return nil
}

// ValidateBuffer checks buffer settings.
func ValidateBuffer(b BufferTime) error {
	switch {
	case b.BufferBefore < 0 || b.BufferBefore > minutesPerDay:
		return Invalid("buffer_before", "must be between 0 and %d", minutesPerDay)
	case b.BufferAfter < 0 || b.BufferAfter > minutesPerDay:
		return Invalid("buffer_after", "must be between 0 and %d", minutesPerDay)
	case b.MinimumGap < 0 || b.MinimumGap > minutesPerDay:
		return Invalid("minimum_gap", "must be between 0 and %d", minutesPerDay)
	case b.SlotIntervalMinutes <= 0 || b.SlotIntervalMinutes > minutesPerDay:
		return Invalid("slot_interval_minutes", "must be between 1 and %d", minutesPerDay)
	}
	return nil
}

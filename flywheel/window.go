package flywheel

import "time"

// =============================================================================
// LOCAL CALENDAR HELPERS
// =============================================================================
// All calendar math happens in the location of the reference instant ("now").
// Event timestamps are converted into that location before comparison.

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Sunday 00:00:00 starting t's local week.
func StartOfWeek(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, -int(t.Weekday()))
}

// StartOfMonth returns 00:00:00 on the first day of t's local month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a falls on the same local calendar day as ref.
func SameDay(a, ref time.Time) bool {
	a = a.In(ref.Location())
	return a.Year() == ref.Year() && a.YearDay() == ref.YearDay()
}

// DayKey formats t's local calendar day as YYYY-MM-DD.
func DayKey(t time.Time) string { return t.Format("2006-01-02") }

// =============================================================================
// WINDOW - Time span a recurrence rule counts completions in
// =============================================================================

// Window is a time span. A zero End means unbounded above.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t is inside [Start, End].
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || !t.After(w.End)
}

// WindowFor returns the counting window of a frequency at now.
//
//	daily, custom, unknown: today, [00:00, next 00:00)
//	weekly:                 [Sunday 00:00, now]
//	monthly:                [1st 00:00, unbounded)
func WindowFor(f Frequency, now time.Time) Window {
	switch f.Type {
	case FrequencyWeekly:
		return Window{Start: StartOfWeek(now), End: now}
	case FrequencyMonthly:
		return Window{Start: StartOfMonth(now)}
	default:
		start := StartOfDay(now)
		return Window{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}
	}
}

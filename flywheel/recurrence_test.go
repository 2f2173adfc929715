package flywheel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func done(id flywheel.HabitID, at time.Time) flywheel.HabitCompletion {
	return flywheel.HabitCompletion{HabitID: id, Timestamp: at, Completed: true}
}

func habit(id flywheel.HabitID, f flywheel.Frequency) flywheel.Habit {
	return flywheel.Habit{ID: id, Name: string(id), Frequency: f, EnergyValue: 1}
}

// Wednesday 2025-03-12 15:00 local
func wednesday(loc *time.Location) time.Time {
	return time.Date(2025, time.March, 12, 15, 0, 0, 0, loc)
}

// =============================================================================
// DAILY
// =============================================================================

func TestIsDueToday_Daily(t *testing.T) {
	// GIVEN: daily habit, times = 2
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Daily(2))

	// zero completions today -> due
	assert.True(t, flywheel.IsDueToday(h, nil, now))

	// one completion -> still due
	log := []flywheel.HabitCompletion{done("h", now.Add(-2*time.Hour))}
	assert.True(t, flywheel.IsDueToday(h, log, now))

	// two completions -> not due
	log = append(log, done("h", now.Add(-time.Hour)))
	assert.False(t, flywheel.IsDueToday(h, log, now))

	// a third completion does not re-arm it
	log = append(log, done("h", now.Add(-30*time.Minute)))
	assert.False(t, flywheel.IsDueToday(h, log, now))

	// next calendar day it is due again
	assert.True(t, flywheel.IsDueToday(h, log, now.AddDate(0, 0, 1)))
}

func TestIsDueToday_Daily_IgnoresYesterdayAndOtherHabits(t *testing.T) {
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Daily(1))
	log := []flywheel.HabitCompletion{
		done("h", flywheel.StartOfDay(now).Add(-time.Second)),
		done("other", now.Add(-time.Hour)),
		{HabitID: "h", Timestamp: now.Add(-time.Hour), Completed: false},
	}

	assert.True(t, flywheel.IsDueToday(h, log, now))
}

func TestIsDueToday_Daily_UsesLocalCalendarDay(t *testing.T) {
	// GIVEN: now is 00:30 on March 12 in UTC+9
	// WHEN: a completion at 23:00 UTC on March 11 (08:00 March 12 local)
	// THEN: it counts as today
	tokyo := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2025, time.March, 12, 10, 0, 0, 0, tokyo)
	h := habit("h", flywheel.Daily(1))
	log := []flywheel.HabitCompletion{done("h", time.Date(2025, time.March, 11, 23, 0, 0, 0, time.UTC))}

	assert.False(t, flywheel.IsDueToday(h, log, now))
}

// =============================================================================
// WEEKLY
// =============================================================================

func TestIsDueToday_Weekly_CountsSinceSunday(t *testing.T) {
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Weekly(2))
	sunday := time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)

	log := []flywheel.HabitCompletion{done("h", sunday), done("h", sunday.Add(26*time.Hour))}
	assert.False(t, flywheel.IsDueToday(h, log, now))

	log = log[:1]
	assert.True(t, flywheel.IsDueToday(h, log, now))
}

func TestIsDueToday_Weekly_SaturdayNightBelongsToPreviousWeek(t *testing.T) {
	// GIVEN: completion Saturday 23:59:59
	// WHEN: evaluating on the following Sunday
	// THEN: it does not count toward the new week
	saturday := time.Date(2025, time.March, 8, 23, 59, 59, 0, time.UTC)
	sunday := time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC)
	h := habit("h", flywheel.Weekly(1))
	log := []flywheel.HabitCompletion{done("h", saturday)}

	assert.True(t, flywheel.IsDueToday(h, log, sunday))
	assert.False(t, flywheel.IsDueToday(h, log, saturday.Add(time.Second/2)))
}

func TestIsDueToday_Weekly_WeekdaysDoNotGate(t *testing.T) {
	// Weekdays is informational: a Monday-only habit is still due on Wednesday.
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Weekly(1, time.Monday))

	assert.True(t, flywheel.IsDueToday(h, nil, now))
}

func TestIsDueToday_Weekly_FutureEventsOutsideWindow(t *testing.T) {
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Weekly(1))
	log := []flywheel.HabitCompletion{done("h", now.Add(time.Hour))}

	assert.True(t, flywheel.IsDueToday(h, log, now))
}

// =============================================================================
// MONTHLY
// =============================================================================

func TestIsDueToday_Monthly(t *testing.T) {
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Monthly(1))

	lastMonth := []flywheel.HabitCompletion{done("h", time.Date(2025, time.February, 28, 12, 0, 0, 0, time.UTC))}
	assert.True(t, flywheel.IsDueToday(h, lastMonth, now))

	thisMonth := []flywheel.HabitCompletion{done("h", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))}
	assert.False(t, flywheel.IsDueToday(h, thisMonth, now))
}

// =============================================================================
// CUSTOM AND UNKNOWN (daily fallback)
// =============================================================================

func TestIsDueToday_Custom_FallsBackToDailyCount(t *testing.T) {
	// Period is not consulted: a "1 time every 3 days" habit done yesterday is due today.
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Custom(1, 3))

	yesterday := []flywheel.HabitCompletion{done("h", now.AddDate(0, 0, -1))}
	assert.True(t, flywheel.IsDueToday(h, yesterday, now))

	today := []flywheel.HabitCompletion{done("h", now.Add(-time.Minute))}
	assert.False(t, flywheel.IsDueToday(h, today, now))
}

func TestIsDueToday_UnknownType_FallsBackToDailyCount(t *testing.T) {
	now := wednesday(time.UTC)
	h := habit("h", flywheel.Frequency{Type: "fortnightly", Times: 1})

	assert.True(t, flywheel.IsDueToday(h, nil, now))
	assert.False(t, flywheel.IsDueToday(h, []flywheel.HabitCompletion{done("h", now)}, now))
}

// =============================================================================
// TODAY'S HABITS / COUNTS
// =============================================================================

func TestTodaysHabits_FiltersAndKeepsOrder(t *testing.T) {
	now := wednesday(time.UTC)
	habits := []flywheel.Habit{
		habit("a", flywheel.Daily(1)),
		habit("b", flywheel.Daily(1)),
		habit("c", flywheel.Monthly(3)),
	}
	log := []flywheel.HabitCompletion{done("b", now.Add(-time.Hour))}

	due := flywheel.TodaysHabits(habits, log, now)

	require.Len(t, due, 2)
	assert.Equal(t, flywheel.HabitID("a"), due[0].ID)
	assert.Equal(t, flywheel.HabitID("c"), due[1].ID)
}

func TestCompletionCount(t *testing.T) {
	log := []flywheel.HabitCompletion{
		done("a", t0), done("a", t0), done("b", t0),
		{HabitID: "a", Timestamp: t0, Completed: false},
	}
	assert.Equal(t, 2, flywheel.CompletionCount(log, "a"))
	assert.Equal(t, 0, flywheel.CompletionCount(log, "zzz"))
}

// =============================================================================
// WINDOWS
// =============================================================================

func TestStartOfWeek_IsSundayMidnight(t *testing.T) {
	got := flywheel.StartOfWeek(wednesday(time.UTC))
	assert.Equal(t, time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.Sunday, got.Weekday())

	sunday := time.Date(2025, time.March, 9, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC), flywheel.StartOfWeek(sunday))
}

func TestWindowFor_MonthlyUnbounded(t *testing.T) {
	w := flywheel.WindowFor(flywheel.Monthly(1), wednesday(time.UTC))
	assert.True(t, w.End.IsZero())
	assert.True(t, w.Contains(time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

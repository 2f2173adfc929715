package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/habit-flywheel/app"
	"github.com/warp/habit-flywheel/flywheel"
)

func TestHistory_BucketsByDayNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.state.CompleteHabit(ctx, "run")
	require.NoError(t, err)
	f.clock.Advance(26 * time.Hour)
	_, err = f.state.CompleteHabit(ctx, "read")
	require.NoError(t, err)
	_, err = f.state.CompleteHabit(ctx, "run")
	require.NoError(t, err)
	f.settle()

	h := f.state.History(app.HistoryFilter{})

	require.Len(t, h.Completions, 2)
	assert.Equal(t, "2025-03-13", h.Completions[0].Date)
	assert.Equal(t, "2025-03-12", h.Completions[1].Date)
	require.Len(t, h.Completions[0].Entries, 2)
	assert.Equal(t, "Read", h.Completions[0].Entries[0].HabitName)
	assert.Equal(t, "Run", h.Completions[0].Entries[1].HabitName)
	assert.Equal(t, "Fitness", h.Completions[0].Entries[1].GroupName)

	// Seed events fall on the two days before the first completion.
	dates := []string{}
	for _, d := range h.Energy {
		dates = append(dates, d.Date)
	}
	assert.Equal(t, []string{"2025-03-13", "2025-03-12", "2025-03-11", "2025-03-10"}, dates)
	assert.Empty(t, h.Redemptions)
}

func TestHistory_GroupFilterDropsOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.state.CompleteHabit(ctx, "run")
	require.NoError(t, err)
	_, err = f.state.RedeemReward(ctx, "movie")
	require.NoError(t, err)
	require.NoError(t, f.state.DeleteHabit(ctx, "run"))
	f.settle()

	all := f.state.History(app.HistoryFilter{})
	require.Len(t, all.Completions, 1)
	entry := all.Completions[0].Entries[0]
	assert.True(t, entry.Orphaned)
	assert.Equal(t, flywheel.HabitID("run"), entry.HabitID)
	assert.Empty(t, entry.HabitName)
	require.Len(t, all.Redemptions, 1)

	fit := f.state.History(app.ForGroup("fit"))
	assert.Empty(t, fit.Completions)
	assert.Empty(t, fit.Redemptions)
	for _, d := range fit.Energy {
		for _, e := range d.Entries {
			assert.Equal(t, flywheel.GroupID("fit"), e.GroupID)
		}
	}

	global := f.state.History(app.ForGroup(flywheel.GlobalPool))
	require.Len(t, global.Redemptions, 1)
	assert.Equal(t, "Movie", global.Redemptions[0].Entries[0].Name)
}

func TestHistory_UsesLocalDay(t *testing.T) {
	f := newFixture(t)
	tokyo := time.FixedZone("JST", 9*3600)
	// 2025-03-12 23:30 UTC is already the 13th in Tokyo.
	f.clock.Set(time.Date(2025, time.March, 13, 8, 30, 0, 0, tokyo))

	_, err := f.state.CompleteHabit(context.Background(), "read")
	require.NoError(t, err)
	f.settle()

	h := f.state.History(app.HistoryFilter{})
	require.NotEmpty(t, h.Completions)
	assert.Equal(t, "2025-03-13", h.Completions[0].Date)
}

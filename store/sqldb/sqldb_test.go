package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/habit-flywheel/flywheel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var now = time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T, a *Account) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.UpsertGroup(ctx, flywheel.Group{ID: "fit", Name: "Fitness"}))
	require.NoError(t, a.UpsertHabit(ctx, flywheel.Habit{
		ID: "run", Name: "Run", GroupID: "fit", EnergyValue: 5,
		Frequency: flywheel.Frequency{Type: flywheel.FrequencyWeekly, Times: 3, Weekdays: []time.Weekday{time.Monday, time.Wednesday}, Description: "3 times a week on Mon, Wed"},
	}))
	require.NoError(t, a.UpsertHabit(ctx, flywheel.Habit{ID: "read", Name: "Read", Frequency: flywheel.Daily(1), EnergyValue: 2}))
	require.NoError(t, a.UpsertReward(ctx, flywheel.Reward{ID: "shoes", Name: "Shoes", GroupID: "fit", EnergyCost: 8, Description: "new pair"}))
	require.NoError(t, a.UpsertReward(ctx, flywheel.Reward{ID: "movie", Name: "Movie", EnergyCost: 2}))
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestAccount_BulkLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t).Account("u1")
	seed(t, a)

	ds, err := a.BulkLoad(ctx)
	require.NoError(t, err)

	require.Len(t, ds.Groups, 1)
	require.Len(t, ds.Habits, 2)
	require.Len(t, ds.Rewards, 2)

	byID := map[flywheel.HabitID]flywheel.Habit{}
	for _, h := range ds.Habits {
		byID[h.ID] = h
	}
	assert.Equal(t, flywheel.GroupID("fit"), byID["run"].GroupID)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, byID["run"].Frequency.Weekdays)
	assert.Equal(t, "3 times a week on Mon, Wed", byID["run"].Frequency.Description)
	assert.True(t, byID["read"].GroupID.IsGlobal())
}

func TestAccount_RowsAreScopedByUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s.Account("u1"))

	ds, err := s.Account("u2").BulkLoad(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds.Groups)
	assert.Empty(t, ds.Habits)

	// u2 cannot overwrite u1's row by id
	require.NoError(t, s.Account("u2").UpsertGroup(ctx, flywheel.Group{ID: "fit", Name: "hijacked"}))
	ds, err = s.Account("u1").BulkLoad(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fitness", ds.Groups[0].Name)
}

// =============================================================================
// LEDGER BATCHES
// =============================================================================

func TestAccount_CompletionAndRedemption(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t).Account("u1")
	seed(t, a)

	for i := 0; i < 2; i++ {
		require.NoError(t, a.AppendCompletion(ctx, flywheel.CompletionBatch{
			HabitID: "run", GroupID: "fit", Amount: 5, Reason: flywheel.CompletionReason("Run"), At: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, a.AppendRedemption(ctx, flywheel.RedemptionBatch{
		RewardID: "shoes", Name: "Shoes", GroupID: "fit", EnergyCost: 8, At: now.Add(time.Hour),
	}))

	ds, err := a.BulkLoad(ctx)
	require.NoError(t, err)
	require.Len(t, ds.Completions, 2)
	require.Len(t, ds.EnergyEvents, 3)
	require.Len(t, ds.Redemptions, 1)
	assert.Equal(t, now, ds.Completions[0].Timestamp)

	b := flywheel.ComputeBalances(ds.EnergyEvents, ds.GroupIDs())
	assert.Equal(t, 2, b.Group("fit"))

	last := ds.EnergyEvents[2]
	assert.Equal(t, flywheel.EnergySpend, last.Kind)
	assert.Equal(t, "Redeemed reward: Shoes", last.Reason)

	for _, r := range ds.Rewards {
		if r.ID == "shoes" {
			assert.True(t, r.Redeemed)
			require.NotNil(t, r.RedeemedAt)
			assert.True(t, now.Add(time.Hour).Equal(*r.RedeemedAt))
		}
	}
}

func TestAccount_RedemptionGuard(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t).Account("u1")
	seed(t, a)

	// GIVEN: global pool holds 2 energy
	require.NoError(t, a.AppendCompletion(ctx, flywheel.CompletionBatch{HabitID: "read", Amount: 2, At: now}))

	// WHEN: shoes (cost 8 in fit) is redeemed with 0 in fit
	err := a.AppendRedemption(ctx, flywheel.RedemptionBatch{RewardID: "shoes", Name: "Shoes", GroupID: "fit", EnergyCost: 8, At: now})
	require.Error(t, err)
	assert.True(t, errors.Is(err, flywheel.ErrInsufficientEnergy))
	assert.True(t, flywheel.IsAdapterFailure(err))

	// THEN: the global reward is redeemable once
	movie := flywheel.RedemptionBatch{RewardID: "movie", Name: "Movie", EnergyCost: 2, At: now}
	require.NoError(t, a.AppendRedemption(ctx, movie))
	err = a.AppendRedemption(ctx, movie)
	assert.True(t, errors.Is(err, flywheel.ErrAlreadyRedeemed))

	// AND: nothing from the failed attempts was written
	ds, err := a.BulkLoad(ctx)
	require.NoError(t, err)
	assert.Len(t, ds.EnergyEvents, 2)
	assert.Len(t, ds.Redemptions, 1)
	assert.Equal(t, 0, flywheel.ComputeBalances(ds.EnergyEvents, ds.GroupIDs()).Global)
}

func TestAccount_RedeemUnknownReward(t *testing.T) {
	a := newTestStore(t).Account("u1")
	err := a.AppendRedemption(context.Background(), flywheel.RedemptionBatch{RewardID: "nope", EnergyCost: 1, At: now})
	assert.True(t, errors.Is(err, flywheel.ErrRewardNotFound))
}

// =============================================================================
// REFERENTIAL RULES
// =============================================================================

func TestAccount_DeleteGroupBlocked(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t).Account("u1")
	seed(t, a)

	err := a.DeleteGroup(ctx, "fit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, flywheel.ErrGroupInUse))
	assert.True(t, flywheel.IsAdapterFailure(err))

	require.NoError(t, a.DeleteHabit(ctx, "run"))
	require.NoError(t, a.DeleteReward(ctx, "shoes"))
	require.NoError(t, a.DeleteGroup(ctx, "fit"))

	ds, err := a.BulkLoad(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds.Groups)
}

func TestAccount_DeleteGroupBlockedByEnergyHistory(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t).Account("u1")
	require.NoError(t, a.UpsertGroup(ctx, flywheel.Group{ID: "g", Name: "G"}))
	require.NoError(t, a.AppendCompletion(ctx, flywheel.CompletionBatch{HabitID: "gone", GroupID: "g", Amount: 1, At: now}))

	err := a.DeleteGroup(ctx, "g")
	assert.True(t, errors.Is(err, flywheel.ErrGroupInUse))
}

func TestAccount_DeleteHabitKeepsCompletions(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t).Account("u1")
	seed(t, a)
	require.NoError(t, a.AppendCompletion(ctx, flywheel.CompletionBatch{HabitID: "read", Amount: 2, At: now}))

	require.NoError(t, a.DeleteHabit(ctx, "read"))

	ds, err := a.BulkLoad(ctx)
	require.NoError(t, err)
	assert.Len(t, ds.Completions, 1)
	assert.Equal(t, flywheel.HabitID("read"), ds.Completions[0].HabitID)
}

func TestAccount_UpsertIntoUnknownGroup(t *testing.T) {
	a := newTestStore(t).Account("u1")
	err := a.UpsertHabit(context.Background(), flywheel.Habit{ID: "x", Name: "X", GroupID: "ghost", Frequency: flywheel.Daily(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, flywheel.ErrGroupNotFound))
}

// =============================================================================
// DIALECT
// =============================================================================

func TestDialect_Rebind(t *testing.T) {
	pg := dialect{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := dialect{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestDialect_AccountLock(t *testing.T) {
	pg := dialect{driver: DriverPostgres}
	assert.Equal(t, "SELECT pg_advisory_xact_lock(hashtext($1))", pg.rebind(pg.accountLock()))
	assert.Equal(t, " FOR UPDATE", pg.forUpdate())

	lite := dialect{driver: DriverSQLite}
	assert.Empty(t, lite.accountLock())
	assert.Empty(t, lite.forUpdate())
}

func TestDialect_Unsupported(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_foreign_keys=on&_journal_mode=WAL", sqliteDSN(":memory:"))
	assert.Equal(t, "f.db?cache=shared&_foreign_keys=on&_journal_mode=WAL", sqliteDSN("f.db?cache=shared"))
}

package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/habit-flywheel/cache"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/flywheel/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var start = time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*cache.Engine, *store.Memory, *cache.ManualClock) {
	t.Helper()
	clock := cache.NewManualClock(start)
	remote := store.NewMemory(&flywheel.Dataset{
		Groups: []flywheel.Group{{ID: "fit", Name: "Fitness"}},
		Habits: []flywheel.Habit{{ID: "run", Name: "Run", GroupID: "fit", Frequency: flywheel.Daily(1), EnergyValue: 5}},
		EnergyEvents: []flywheel.EnergyEvent{
			{Timestamp: start, GroupID: "fit", Amount: 10, Kind: flywheel.EnergyGain},
			{Timestamp: start, Amount: 5, Kind: flywheel.EnergyGain},
			{Timestamp: start, GroupID: "fit", Amount: 3, Kind: flywheel.EnergySpend},
		},
	})
	e := cache.New(cache.Options{Clock: clock})
	return e, remote, clock
}

func signIn(t *testing.T, e *cache.Engine, remote flywheel.RemoteStore) cache.Session {
	t.Helper()
	require.NoError(t, e.SignIn(context.Background(), remote))
	sess, err := e.Session()
	require.NoError(t, err)
	return sess
}

// =============================================================================
// LOADING
// =============================================================================

func TestEngine_StartsEmpty(t *testing.T) {
	e, _, _ := setup(t)

	assert.Equal(t, cache.StateEmpty, e.State())
	assert.False(t, e.Snapshot().Loaded())
	_, err := e.Session()
	assert.ErrorIs(t, err, flywheel.ErrNoSession)
	assert.ErrorIs(t, e.Refresh(context.Background(), false), flywheel.ErrNoSession)
}

func TestEngine_SignInLoadsAndDerivesBalances(t *testing.T) {
	e, remote, _ := setup(t)

	signIn(t, e, remote)

	s := e.Snapshot()
	assert.Equal(t, cache.StateReady, e.State())
	assert.True(t, s.Loaded())
	assert.Equal(t, 7, s.Balances.Group("fit"))
	assert.Equal(t, 5, s.Balances.Global)
	assert.Equal(t, 12, s.Balances.Total())
	assert.Equal(t, 1, remote.Calls(store.OpBulkLoad))
}

func TestEngine_FreshnessWindow(t *testing.T) {
	// GIVEN: a load just completed
	// WHEN: two non-forced refreshes within 5 seconds
	// THEN: no further bulk load
	ctx := context.Background()
	e, remote, clock := setup(t)
	signIn(t, e, remote)

	require.NoError(t, e.Refresh(ctx, false))
	clock.Advance(3 * time.Second)
	require.NoError(t, e.Refresh(ctx, false))
	clock.Advance(1999 * time.Millisecond)
	require.NoError(t, e.Refresh(ctx, false))
	assert.Equal(t, 1, remote.Calls(store.OpBulkLoad))

	// Past the window the next refresh loads
	clock.Advance(time.Millisecond)
	require.NoError(t, e.Refresh(ctx, false))
	assert.Equal(t, 2, remote.Calls(store.OpBulkLoad))
}

func TestEngine_ForceBypassesFreshness(t *testing.T) {
	ctx := context.Background()
	e, remote, _ := setup(t)
	signIn(t, e, remote)

	require.NoError(t, e.Refresh(ctx, true))
	require.NoError(t, e.Refresh(ctx, true))
	assert.Equal(t, 3, remote.Calls(store.OpBulkLoad))
}

func TestEngine_StaleButAvailable(t *testing.T) {
	ctx := context.Background()
	e, remote, _ := setup(t)
	signIn(t, e, remote)
	before := e.Snapshot()

	boom := errors.New("timeout")
	remote.FailNext(store.OpBulkLoad, boom)
	err := e.Refresh(ctx, true)

	require.Error(t, err)
	assert.True(t, flywheel.IsAdapterFailure(err))
	assert.Equal(t, cache.StateReady, e.State())
	assert.Same(t, before, e.Snapshot(), "old snapshot must stay published")
	assert.ErrorIs(t, e.LastError(), boom)

	require.NoError(t, e.Refresh(ctx, true))
	assert.NoError(t, e.LastError())
}

func TestEngine_InitialLoadFailureLeavesEmpty(t *testing.T) {
	ctx := context.Background()
	e, remote, _ := setup(t)
	remote.FailNext(store.OpBulkLoad, errors.New("offline"))

	err := e.SignIn(ctx, remote)

	require.Error(t, err)
	assert.Equal(t, cache.StateEmpty, e.State())
	assert.False(t, e.Snapshot().Loaded())

	// The session survives: a plain refresh retries.
	_, err = e.Session()
	require.NoError(t, err)
	require.NoError(t, e.Refresh(ctx, false))
	assert.Equal(t, cache.StateReady, e.State())
}

// =============================================================================
// SESSION END
// =============================================================================

func TestEngine_SignOutClears(t *testing.T) {
	e, remote, clock := setup(t)
	sess := signIn(t, e, remote)
	e.ScheduleReload(sess)

	e.SignOut()

	assert.Equal(t, cache.StateEmpty, e.State())
	assert.False(t, e.Snapshot().Loaded())
	assert.Empty(t, e.Snapshot().Data.Groups)
	assert.False(t, e.ReloadPending())

	clock.Advance(time.Second)
	assert.Equal(t, 1, remote.Calls(store.OpBulkLoad), "cancelled reload must not run")
	assert.False(t, e.Patch(sess, func(d *flywheel.Dataset) {}))
}

func TestEngine_LoadFinishingAfterSignOutIsDiscarded(t *testing.T) {
	e, remote, _ := setup(t)
	signIn(t, e, remote)

	entered := make(chan struct{})
	release := make(chan struct{})
	remote.SetHook(func(ctx context.Context, op store.Op) error {
		if op == store.OpBulkLoad {
			close(entered)
			<-release
		}
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var refreshErr error
	go func() {
		defer wg.Done()
		refreshErr = e.Refresh(context.Background(), true)
	}()

	<-entered
	e.SignOut()
	close(release)
	wg.Wait()

	assert.NoError(t, refreshErr)
	assert.Equal(t, cache.StateEmpty, e.State())
	assert.False(t, e.Snapshot().Loaded())
}

// =============================================================================
// TIER A / TIER B
// =============================================================================

func TestEngine_PatchPublishesNewSnapshot(t *testing.T) {
	e, remote, clock := setup(t)
	sess := signIn(t, e, remote)
	before := e.Snapshot()
	clock.Advance(time.Second)

	ok := e.Patch(sess, func(d *flywheel.Dataset) {
		d.Groups = append(d.Groups, flywheel.Group{ID: "work", Name: "Work"})
	})

	require.True(t, ok)
	after := e.Snapshot()
	assert.NotSame(t, before, after)
	assert.Greater(t, after.Version, before.Version)
	assert.Len(t, after.Data.Groups, 2)
	assert.Len(t, before.Data.Groups, 1, "published snapshots are immutable")

	v, present := after.Balances.PerGroup["work"]
	assert.True(t, present)
	assert.Equal(t, 0, v)
	assert.Equal(t, before.FetchedAt, after.FetchedAt)
	assert.Equal(t, 1, remote.Calls(store.OpBulkLoad))
}

func TestEngine_PatchBeforeFirstLoadIsRefused(t *testing.T) {
	e, remote, _ := setup(t)
	remote.FailNext(store.OpBulkLoad, errors.New("offline"))
	_ = e.SignIn(context.Background(), remote)
	sess, err := e.Session()
	require.NoError(t, err)

	assert.False(t, e.Patch(sess, func(d *flywheel.Dataset) {}))
}

func TestEngine_DebounceCoalescesReloads(t *testing.T) {
	// GIVEN: three Tier B mutations 100ms apart
	// THEN: exactly one reload, 300ms after the last
	e, remote, clock := setup(t)
	sess := signIn(t, e, remote)

	e.ScheduleReload(sess)
	clock.Advance(100 * time.Millisecond)
	e.ScheduleReload(sess)
	clock.Advance(100 * time.Millisecond)
	e.ScheduleReload(sess)

	clock.Advance(299 * time.Millisecond)
	assert.Equal(t, 1, remote.Calls(store.OpBulkLoad))
	assert.True(t, e.ReloadPending())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 2, remote.Calls(store.OpBulkLoad))
	assert.False(t, e.ReloadPending())

	clock.Advance(5 * time.Second)
	assert.Equal(t, 2, remote.Calls(store.OpBulkLoad))
}

func TestEngine_DebouncedReloadPicksUpWrites(t *testing.T) {
	ctx := context.Background()
	e, remote, clock := setup(t)
	sess := signIn(t, e, remote)

	require.NoError(t, remote.AppendCompletion(ctx, flywheel.CompletionBatch{HabitID: "run", GroupID: "fit", Amount: 5, At: start}))
	e.ScheduleReload(sess)
	assert.Equal(t, 7, e.Snapshot().Balances.Group("fit"))

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, 12, e.Snapshot().Balances.Group("fit"))
}

func TestEngine_ReloadFromOldSessionIgnored(t *testing.T) {
	e, remote, clock := setup(t)
	old := signIn(t, e, remote)
	signIn(t, e, remote)

	e.ScheduleReload(old)
	assert.False(t, e.ReloadPending())
	clock.Advance(time.Second)
	assert.Equal(t, 2, remote.Calls(store.OpBulkLoad))
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func TestEngine_Subscribe(t *testing.T) {
	e, remote, _ := setup(t)

	var versions []uint64
	cancel := e.Subscribe(func(s *cache.Snapshot) { versions = append(versions, s.Version) })

	sess := signIn(t, e, remote)
	require.Len(t, versions, 2, "reset then load")

	e.Patch(sess, func(d *flywheel.Dataset) {})
	require.Len(t, versions, 3)
	assert.Less(t, versions[1], versions[2])

	cancel()
	e.Patch(sess, func(d *flywheel.Dataset) {})
	assert.Len(t, versions, 3)
}

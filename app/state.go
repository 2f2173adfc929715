/*
Package app is the application state facade: the one object a UI or the
HTTP layer talks to.

PURPOSE:
  Wraps the cache engine with the user-facing operations (add a habit,
  complete it, redeem a reward...) and the derived queries (today's habits,
  balances, history). Every read is served from the current snapshot and
  never blocks on the network. Every write goes synchronously through the
  account's remote store and then updates the cache by one of two tiers.

WRITE TIERS:
  Tier A (groups):   write, then patch the snapshot with the exact change.
  Tier B (the rest): write, then schedule a debounced reload.
  A failed write leaves the snapshot untouched and schedules nothing.

REDEMPTION:
  RedeemReward checks the reward against the cached balance of its scope
  first. A refusal (already redeemed, insufficient energy) makes no remote
  call at all.

FILES:
  state.go    Facade type, options, session, snapshot queries
  groups.go   Group operations (Tier A)
  habits.go   Habit operations and today's habits
  rewards.go  Reward operations and redemption
  history.go  Ledger history by day

SEE ALSO:
  - cache/engine.go: Snapshot, freshness and debounce
  - rewards/rewards.go: Redemption authorization
*/
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/habit-flywheel/cache"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
)

// =============================================================================
// STATE
// =============================================================================

type State struct {
	engine *cache.Engine
	newID  func() string

	todayMu sync.Mutex
	today   todayMemo
}

// todayMemo caches TodaysHabits for one snapshot on one local day.
type todayMemo struct {
	version uint64
	day     string
	habits  []flywheel.Habit
	valid   bool
}

// Option configures a State.
type Option func(*config)

type config struct {
	engine cache.Options
	newID  func() string
}

// WithClock sets the time source for timestamps, windows and timers.
func WithClock(c cache.Clock) Option {
	return func(cfg *config) { cfg.engine.Clock = c }
}

// WithFreshness sets the window a loaded snapshot is served without reloading.
func WithFreshness(d time.Duration) Option {
	return func(cfg *config) { cfg.engine.Freshness = d }
}

// WithDebounce sets the coalescing window of Tier B reloads.
func WithDebounce(d time.Duration) Option {
	return func(cfg *config) { cfg.engine.Debounce = d }
}

// WithIDGenerator replaces the UUID generator used for new entities.
func WithIDGenerator(fn func() string) Option {
	return func(cfg *config) { cfg.newID = fn }
}

// New returns a facade with no session.
func New(opts ...Option) *State {
	cfg := config{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &State{
		engine: cache.New(cfg.engine),
		newID:  cfg.newID,
	}
}

// Engine exposes the underlying cache engine.
func (s *State) Engine() *cache.Engine { return s.engine }

// Now returns the facade's current time.
func (s *State) Now() time.Time { return s.engine.Clock().Now() }

// =============================================================================
// SESSION
// =============================================================================

// SignIn makes remote the active account and forces a full load. The
// session stays active even if that first load fails.
func (s *State) SignIn(ctx context.Context, remote flywheel.RemoteStore) error {
	return s.engine.SignIn(ctx, remote)
}

// SignOut clears the cache and drops the session.
func (s *State) SignOut() {
	s.engine.SignOut()
}

// SignedIn reports whether an account is attached.
func (s *State) SignedIn() bool {
	_, err := s.engine.Session()
	return err == nil
}

// Refresh reloads from the remote store unless the snapshot is still fresh
// and force is false.
func (s *State) Refresh(ctx context.Context, force bool) error {
	return s.engine.Refresh(ctx, force)
}

// Loading reports whether a load is in flight.
func (s *State) Loading() bool { return s.engine.State() == cache.StateLoading }

// Status returns the cache state.
func (s *State) Status() cache.State { return s.engine.State() }

// Snapshot returns the current immutable snapshot.
func (s *State) Snapshot() *cache.Snapshot { return s.engine.Snapshot() }

// Subscribe registers fn for every snapshot change. The returned func
// unsubscribes.
func (s *State) Subscribe(fn func(*cache.Snapshot)) func() {
	return s.engine.Subscribe(fn)
}

// =============================================================================
// WRITE HELPERS
// =============================================================================

// afterWrite is the Tier B tail of a successful write.
func (s *State) afterWrite(sess cache.Session) {
	s.engine.ScheduleReload(sess)
}

// patch is the Tier A tail of a successful write. Without a loaded snapshot
// to patch, it falls back to a reload.
func (s *State) patch(sess cache.Session, fn func(d *flywheel.Dataset)) {
	if !s.engine.Patch(sess, fn) {
		s.engine.ScheduleReload(sess)
	}
}

func writeFailed(op string, err error, keyvals ...interface{}) error {
	logger.Warn("write failed", append([]interface{}{"op", op, "error", err}, keyvals...)...)
	return err
}

// =============================================================================
// ENERGY QUERIES
// =============================================================================

// GroupEnergy returns the cached balance of a scope. GlobalPool returns the
// global balance; an unknown group returns 0.
func (s *State) GroupEnergy(id flywheel.GroupID) int {
	return s.Snapshot().Balances.Group(id)
}

// GlobalEnergy returns the global pool balance.
func (s *State) GlobalEnergy() int { return s.Snapshot().Balances.Global }

// TotalEnergy returns the sum over all groups and the global pool.
func (s *State) TotalEnergy() int { return s.Snapshot().Balances.Total() }

// Balances returns a copy of the cached balances.
func (s *State) Balances() flywheel.Balances { return s.Snapshot().Balances.Clone() }

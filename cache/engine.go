/*
Package cache owns the in-memory snapshot of one signed-in account and keeps
it fresh against the remote store.

PURPOSE:
  Every read in the application is served from a single immutable Snapshot.
  The engine decides when to go back to the remote store: on sign-in, on an
  explicit refresh older than the freshness window, and on a debounced
  reload after a mutation that changes derived state.

STATE MACHINE:
  Empty   -> SignIn            -> Loading
  Loading -> load succeeds     -> Ready (new snapshot)
  Loading -> load fails        -> Ready with the previous snapshot if one
                                  was loaded, else Empty. The error goes to
                                  the caller.
  Ready   -> Refresh, fresh    -> Ready, no remote call
  Ready   -> Refresh forced or -> Loading
             older than window
  any     -> SignOut           -> Empty, snapshot discarded

WRITE TIERS:
  Tier A: entity-only edits (groups). The caller writes through the adapter
  and then Patch()es the snapshot with the exact change.
  Tier B: everything that touches the ledger or due-today membership. The
  caller writes through the adapter and then ScheduleReload()s. Reloads are
  coalesced in a single Slot: only the last request inside the debounce
  window survives.

CONCURRENCY:
  Readers call Snapshot() and never block: the current snapshot sits in an
  atomic pointer. loadMu serializes loads and patches so a snapshot is never
  built from two interleaved sources. mu guards the session (remote and
  generation). Every sign-in and sign-out bumps the generation; a load or
  patch that started under an older generation is discarded when it
  finishes.

SEE ALSO:
  - debounce.go: Slot
  - clock.go: Clock and ManualClock
  - app/state.go: Facade that drives the engine
*/
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
)

// =============================================================================
// STATE
// =============================================================================

// State is the cache lifecycle phase of the current session.
type State int32

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// =============================================================================
// OPTIONS
// =============================================================================

const (
	DefaultFreshness     = 5 * time.Second
	DefaultDebounce      = 300 * time.Millisecond
	DefaultReloadTimeout = 30 * time.Second
)

// Options configures an Engine. Zero fields take the defaults above.
type Options struct {
	// Freshness is how long a loaded snapshot is served without a remote call.
	Freshness time.Duration
	// Debounce is the coalescing window of Tier B reloads.
	Debounce time.Duration
	// ReloadTimeout bounds a debounced reload, which has no caller context.
	ReloadTimeout time.Duration
	Clock         Clock
}

func (o Options) withDefaults() Options {
	if o.Freshness <= 0 {
		o.Freshness = DefaultFreshness
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.ReloadTimeout <= 0 {
		o.ReloadTimeout = DefaultReloadTimeout
	}
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	return o
}

// =============================================================================
// SESSION
// =============================================================================

// Session pins the remote store and generation a mutation started under.
type Session struct {
	remote flywheel.RemoteStore
	gen    uint64
}

// Remote returns the account's store.
func (s Session) Remote() flywheel.RemoteStore { return s.remote }

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns the cached snapshot of one signed-in account and decides when
// to load it from the remote store.
type Engine struct {
	opts   Options
	clock  Clock
	reload *Slot

	snap    atomic.Pointer[Snapshot]
	state   atomic.Int32
	version atomic.Uint64

	loadMu sync.Mutex

	mu      sync.Mutex
	remote  flywheel.RemoteStore
	gen     uint64
	lastErr error
	subs    map[int]func(*Snapshot)
	nextSub int
}

// New returns an engine in the Empty state.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:   opts,
		clock:  opts.Clock,
		reload: NewSlot(opts.Clock, opts.Debounce),
		subs:   make(map[int]func(*Snapshot)),
	}
	e.snap.Store(emptySnapshot(0))
	return e
}

// Clock returns the engine's time source.
func (e *Engine) Clock() Clock { return e.clock }

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Snapshot returns the current snapshot. Never nil, never blocks.
func (e *Engine) Snapshot() *Snapshot { return e.snap.Load() }

// State returns the current engine state.
func (e *Engine) State() State { return State(e.state.Load()) }

// LastError returns the error of the most recent failed load, cleared by the
// next successful one.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ReloadPending reports whether a debounced reload is armed.
func (e *Engine) ReloadPending() bool { return e.reload.Pending() }

// Session returns the active session or ErrNoSession.
func (e *Engine) Session() (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remote == nil {
		return Session{}, flywheel.ErrNoSession
	}
	return Session{remote: e.remote, gen: e.gen}, nil
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// SignIn attaches remote as the active account and forces a full load.
// A failed load leaves the session attached and the state Empty.
func (e *Engine) SignIn(ctx context.Context, remote flywheel.RemoteStore) error {
	e.reset(remote)
	logger.Info("session started")
	return e.Refresh(ctx, true)
}

// SignOut detaches the account, drops any pending reload and clears the cache.
func (e *Engine) SignOut() {
	e.reset(nil)
	logger.Info("session ended")
}

func (e *Engine) reset(remote flywheel.RemoteStore) {
	e.reload.Cancel()

	e.mu.Lock()
	e.gen++
	e.remote = remote
	e.lastErr = nil
	next := emptySnapshot(e.version.Add(1))
	e.snap.Store(next)
	e.state.Store(int32(StateEmpty))
	subs := e.subscribersLocked()
	e.mu.Unlock()

	notify(subs, next)
}

// =============================================================================
// LOADING
// =============================================================================

// Refresh reloads the snapshot unless it is younger than the freshness
// window and force is false.
func (e *Engine) Refresh(ctx context.Context, force bool) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	return e.refreshLocked(ctx, force, 0)
}

// refreshLocked runs with loadMu held. A non-zero onlyGen skips the load
// unless that generation is still current.
func (e *Engine) refreshLocked(ctx context.Context, force bool, onlyGen uint64) error {
	e.mu.Lock()
	remote, gen := e.remote, e.gen
	if remote == nil {
		e.mu.Unlock()
		return flywheel.ErrNoSession
	}
	if onlyGen != 0 && onlyGen != gen {
		e.mu.Unlock()
		return nil
	}
	cur := e.snap.Load()
	if !force && cur.Loaded() && cur.Age(e.clock.Now()) < e.opts.Freshness {
		e.mu.Unlock()
		logger.Debug("serving cached snapshot", "age", cur.Age(e.clock.Now()))
		return nil
	}
	e.state.Store(int32(StateLoading))
	e.mu.Unlock()

	ds, err := remote.BulkLoad(ctx)

	e.mu.Lock()
	if gen != e.gen {
		// Signed out or switched accounts while loading.
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		if cur.Loaded() {
			e.state.Store(int32(StateReady))
		} else {
			e.state.Store(int32(StateEmpty))
		}
		e.lastErr = err
		e.mu.Unlock()
		logger.Warn("bulk load failed", "error", err, "stale", cur.Loaded())
		return err
	}

	next := newSnapshot(ds, e.clock.Now(), e.version.Add(1))
	e.snap.Store(next)
	e.state.Store(int32(StateReady))
	e.lastErr = nil
	subs := e.subscribersLocked()
	e.mu.Unlock()

	logger.Debug("snapshot loaded",
		"groups", len(ds.Groups), "habits", len(ds.Habits), "rewards", len(ds.Rewards),
		"energy_events", len(ds.EnergyEvents), "version", next.Version)
	notify(subs, next)
	return nil
}

// =============================================================================
// TIER A - Direct patches
// =============================================================================

// Patch applies fn to a copy of the current dataset and publishes the result
// with balances recomputed. It does nothing and returns false when the
// session changed since sess was taken or nothing has been loaded yet.
// fn must be idempotent: a reload that already contains the change may land
// first.
func (e *Engine) Patch(sess Session, fn func(d *flywheel.Dataset)) bool {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	if sess.gen != e.gen || e.remote == nil {
		e.mu.Unlock()
		return false
	}
	cur := e.snap.Load()
	if !cur.Loaded() {
		e.mu.Unlock()
		return false
	}
	d := cur.Data.Clone()
	fn(d)
	next := newSnapshot(d, cur.FetchedAt, e.version.Add(1))
	e.snap.Store(next)
	subs := e.subscribersLocked()
	e.mu.Unlock()

	notify(subs, next)
	return true
}

// =============================================================================
// TIER B - Debounced reload
// =============================================================================

// ScheduleReload arms a forced reload after the debounce window, replacing
// any reload already waiting.
func (e *Engine) ScheduleReload(sess Session) {
	e.mu.Lock()
	current := sess.gen == e.gen && e.remote != nil
	e.mu.Unlock()
	if !current {
		return
	}

	e.reload.Schedule(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.ReloadTimeout)
		defer cancel()

		e.loadMu.Lock()
		defer e.loadMu.Unlock()
		if err := e.refreshLocked(ctx, true, sess.gen); err != nil {
			logger.Warn("debounced reload failed", "error", err)
		}
	})
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn to be called after every snapshot swap. fn runs on
// the goroutine that published the snapshot and must not call back into
// Refresh or Patch synchronously. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(*Snapshot)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) subscribersLocked() []func(*Snapshot) {
	subs := make([]func(*Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(*Snapshot), s *Snapshot) {
	for _, fn := range subs {
		fn(s)
	}
}

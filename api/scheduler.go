/*
scheduler.go - Day rollover scheduler

PURPOSE:
  Periodically checks whether the local calendar day has changed and, when
  it has, force-refreshes the cache so today's habits and history reflect
  the new day and any rows written by other devices overnight.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Remembers the last day it saw; the first check only records it
  - Without a session the check is skipped and the day is still recorded

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(state)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - app/habits.go: TodaysHabits
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/habit-flywheel/app"
	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
)

// DefaultRolloverInterval is how often the scheduler looks at the clock.
const DefaultRolloverInterval = time.Minute

// RolloverScheduler refreshes the cache when the local day changes.
type RolloverScheduler struct {
	State         *app.State
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastDay string
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(state *app.State) *RolloverScheduler {
	return &RolloverScheduler{
		State:         state,
		CheckInterval: DefaultRolloverInterval,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		logger.Info("rollover scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	logger.Info("rollover scheduler started", "interval", rs.CheckInterval)
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	logger.Info("rollover scheduler stopped")
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Record the starting day immediately
	rs.check()

	for {
		select {
		case <-ticker.C:
			rs.check()
		case <-stop:
			return
		}
	}
}

func (rs *RolloverScheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.CheckInterval)
	defer cancel()
	if _, err := rs.RunNow(ctx); err != nil {
		logger.Warn("rollover refresh failed", "error", err)
	}
}

// RunNow performs one check. It reports whether the day changed since the
// previous check and returns the refresh error, if any.
func (rs *RolloverScheduler) RunNow(ctx context.Context) (bool, error) {
	day := flywheel.DayKey(rs.State.Now())

	rs.mu.Lock()
	prev := rs.lastDay
	rs.lastDay = day
	rs.mu.Unlock()

	if prev == "" || prev == day {
		return false, nil
	}

	logger.Info("day rollover", "from", prev, "to", day)
	err := rs.State.Refresh(ctx, true)
	if errors.Is(err, flywheel.ErrNoSession) {
		return true, nil
	}
	return true, err
}

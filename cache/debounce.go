package cache

import (
	"sync"
	"time"
)

// =============================================================================
// SLOT - Single-slot debounced task
// =============================================================================

// Slot holds at most one scheduled task. Schedule cancels whatever is
// waiting and arms the new task after the slot's delay, so a burst of
// requests collapses into one run, delay after the last request.
type Slot struct {
	clock Clock
	delay time.Duration

	mu    sync.Mutex
	timer Timer
	seq   uint64
}

// NewSlot returns an empty slot.
func NewSlot(clock Clock, delay time.Duration) *Slot {
	return &Slot{clock: clock, delay: delay}
}

// Schedule replaces any pending task with fn.
func (s *Slot) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.mu.Lock()
		// A timer that lost the race with Stop must not run.
		if seq != s.seq {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending task, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

// Pending reports whether a task is armed.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

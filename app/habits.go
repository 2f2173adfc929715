package app

import (
	"context"
	"strings"

	"github.com/warp/habit-flywheel/factory"
	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// INPUTS
// =============================================================================

// HabitInput describes a new habit. GroupID GlobalPool puts it in the
// global pool.
type HabitInput struct {
	Name        string
	GroupID     flywheel.GroupID
	Frequency   flywheel.Frequency
	EnergyValue int
}

// HabitUpdate changes the non-nil fields of a habit.
type HabitUpdate struct {
	Name        *string
	GroupID     *flywheel.GroupID
	Frequency   *flywheel.Frequency
	EnergyValue *int
}

// =============================================================================
// HABIT OPERATIONS (Tier B)
// =============================================================================

// AddHabit creates a habit and schedules a reload.
func (s *State) AddHabit(ctx context.Context, in HabitInput) (flywheel.Habit, error) {
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Habit{}, err
	}
	h := flywheel.Habit{
		ID:          flywheel.HabitID(s.newID()),
		Name:        in.Name,
		GroupID:     in.GroupID,
		Frequency:   in.Frequency,
		EnergyValue: in.EnergyValue,
	}
	if h, err = s.validHabit(h); err != nil {
		return flywheel.Habit{}, err
	}

	if err := sess.Remote().UpsertHabit(ctx, h); err != nil {
		return flywheel.Habit{}, writeFailed("AddHabit", err)
	}
	s.afterWrite(sess)
	return h, nil
}

// UpdateHabit applies the non-nil fields of u and schedules a reload.
func (s *State) UpdateHabit(ctx context.Context, id flywheel.HabitID, u HabitUpdate) (flywheel.Habit, error) {
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Habit{}, err
	}
	h, ok := s.Snapshot().Habit(id)
	if !ok {
		return flywheel.Habit{}, flywheel.ErrHabitNotFound
	}

	if u.Name != nil {
		h.Name = *u.Name
	}
	if u.GroupID != nil {
		h.GroupID = *u.GroupID
	}
	if u.Frequency != nil {
		h.Frequency = *u.Frequency
	}
	if u.EnergyValue != nil {
		h.EnergyValue = *u.EnergyValue
	}
	if h, err = s.validHabit(h); err != nil {
		return flywheel.Habit{}, err
	}

	if err := sess.Remote().UpsertHabit(ctx, h); err != nil {
		return flywheel.Habit{}, writeFailed("UpdateHabit", err, "habit", id)
	}
	s.afterWrite(sess)
	return h, nil
}

// DeleteHabit removes a habit. Its completions stay in the ledger.
func (s *State) DeleteHabit(ctx context.Context, id flywheel.HabitID) error {
	sess, err := s.engine.Session()
	if err != nil {
		return err
	}
	if _, ok := s.Snapshot().Habit(id); !ok {
		return flywheel.ErrHabitNotFound
	}

	if err := sess.Remote().DeleteHabit(ctx, id); err != nil {
		return writeFailed("DeleteHabit", err, "habit", id)
	}
	s.afterWrite(sess)
	return nil
}

// CompleteHabit records one completion and its energy gain atomically, then
// schedules a reload. Balances move when the reload lands.
func (s *State) CompleteHabit(ctx context.Context, id flywheel.HabitID) (flywheel.HabitCompletion, error) {
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.HabitCompletion{}, err
	}
	h, ok := s.Snapshot().Habit(id)
	if !ok {
		return flywheel.HabitCompletion{}, flywheel.ErrHabitNotFound
	}

	batch := flywheel.CompletionBatch{
		HabitID: h.ID,
		GroupID: h.GroupID,
		Amount:  h.EnergyValue,
		Reason:  flywheel.CompletionReason(h.Name),
		At:      s.Now(),
	}
	if err := sess.Remote().AppendCompletion(ctx, batch); err != nil {
		return flywheel.HabitCompletion{}, writeFailed("CompleteHabit", err, "habit", id)
	}
	s.afterWrite(sess)
	return batch.Completion(), nil
}

func (s *State) validHabit(h flywheel.Habit) (flywheel.Habit, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return h, flywheel.Invalid("name", "must not be empty")
	}
	if h.EnergyValue < 1 {
		return h, flywheel.Invalid("energy_value", "must be at least 1")
	}
	if !h.GroupID.IsGlobal() {
		if _, ok := s.Snapshot().Group(h.GroupID); !ok {
			return h, flywheel.ErrGroupNotFound
		}
	}
	f, err := factory.Normalize(h.Frequency)
	if err != nil {
		return h, err
	}
	h.Frequency = f
	return h, nil
}

// =============================================================================
// HABIT QUERIES
// =============================================================================

// Habits returns all habits in load order.
func (s *State) Habits() []flywheel.Habit {
	return append([]flywheel.Habit{}, s.Snapshot().Data.Habits...)
}

// Habit looks up a habit by id.
func (s *State) Habit(id flywheel.HabitID) (flywheel.Habit, bool) {
	return s.Snapshot().Habit(id)
}

// HabitsByGroup returns the habits of one scope. GlobalPool selects
// global habits.
func (s *State) HabitsByGroup(id flywheel.GroupID) []flywheel.Habit {
	out := []flywheel.Habit{}
	for _, h := range s.Snapshot().Data.Habits {
		if h.GroupID == id {
			out = append(out, h)
		}
	}
	return out
}

// HabitCompletionCount returns the all-time number of completions of a habit.
func (s *State) HabitCompletionCount(id flywheel.HabitID) int {
	return flywheel.CompletionCount(s.Snapshot().Data.Completions, id)
}

// TodaysHabits returns the habits still due in their current window. The
// result is memoized per snapshot and local day.
func (s *State) TodaysHabits() []flywheel.Habit {
	snap := s.Snapshot()
	now := s.Now()
	day := flywheel.DayKey(now)

	s.todayMu.Lock()
	defer s.todayMu.Unlock()

	m := s.today
	if !m.valid || m.version != snap.Version || m.day != day {
		m = todayMemo{
			version: snap.Version,
			day:     day,
			habits:  flywheel.TodaysHabits(snap.Data.Habits, snap.Data.Completions, now),
			valid:   true,
		}
		s.today = m
	}
	return append([]flywheel.Habit{}, m.habits...)
}

// Package store provides RemoteStore implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Op names a RemoteStore method for fault injection and call counting.
type Op string

const (
	OpBulkLoad         Op = "BulkLoad"
	OpUpsertGroup      Op = "UpsertGroup"
	OpUpsertHabit      Op = "UpsertHabit"
	OpUpsertReward     Op = "UpsertReward"
	OpDeleteGroup      Op = "DeleteGroup"
	OpDeleteHabit      Op = "DeleteHabit"
	OpDeleteReward     Op = "DeleteReward"
	OpAppendCompletion Op = "AppendCompletion"
	OpAppendRedemption Op = "AppendRedemption"
)

// Memory holds a single account's rows. It enforces the same referential
// rules as the SQL schema: habits, rewards and ledger rows may only point at
// existing groups, and a referenced group cannot be deleted.
type Memory struct {
	mu       sync.Mutex
	data     *flywheel.Dataset
	calls    map[Op]int
	faults   map[Op]error
	failNext map[Op]error
	hook     func(ctx context.Context, op Op) error
}

var _ flywheel.RemoteStore = (*Memory)(nil)

// NewMemory returns a store seeded with a copy of seed (nil for empty).
func NewMemory(seed *flywheel.Dataset) *Memory {
	return &Memory{
		data:     seed.Clone(),
		calls:    make(map[Op]int),
		faults:   make(map[Op]error),
		failNext: make(map[Op]error),
	}
}

// =============================================================================
// TEST CONTROLS
// =============================================================================

// Fail makes every call to op fail with err until cleared with a nil err.
func (m *Memory) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// FailNext makes only the next call to op fail with err.
func (m *Memory) FailNext(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = err
}

// SetHook installs a function run before every call, outside the store lock.
// A non-nil error from the hook fails the call. Tests use it to hold a call
// in flight.
func (m *Memory) SetHook(fn func(ctx context.Context, op Op) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Calls returns how many times op was invoked, failed calls included.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of invocations across all ops.
func (m *Memory) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// ResetCalls zeroes the call counters.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[Op]int)
}

// Rows returns a copy of the stored dataset without counting a call.
func (m *Memory) Rows() *flywheel.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone()
}

// begin counts the call, runs the hook and applies injected faults.
// On success it returns with m.mu held.
func (m *Memory) begin(ctx context.Context, op Op) error {
	m.mu.Lock()
	m.calls[op]++
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op); err != nil {
			return flywheel.WrapAdapter(string(op), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return flywheel.WrapAdapter(string(op), err)
	}

	m.mu.Lock()
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		m.mu.Unlock()
		return flywheel.WrapAdapter(string(op), err)
	}
	if err, ok := m.faults[op]; ok {
		m.mu.Unlock()
		return flywheel.WrapAdapter(string(op), err)
	}
	return nil
}

// =============================================================================
// READ
// =============================================================================

func (m *Memory) BulkLoad(ctx context.Context) (*flywheel.Dataset, error) {
	if err := m.begin(ctx, OpBulkLoad); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.data.Clone(), nil
}

// =============================================================================
// UPSERTS
// =============================================================================

func (m *Memory) UpsertGroup(ctx context.Context, g flywheel.Group) error {
	if err := m.begin(ctx, OpUpsertGroup); err != nil {
		return err
	}
	defer m.mu.Unlock()

	for i := range m.data.Groups {
		if m.data.Groups[i].ID == g.ID {
			m.data.Groups[i] = g
			return nil
		}
	}
	m.data.Groups = append(m.data.Groups, g)
	return nil
}

func (m *Memory) UpsertHabit(ctx context.Context, h flywheel.Habit) error {
	if err := m.begin(ctx, OpUpsertHabit); err != nil {
		return err
	}
	defer m.mu.Unlock()

	if err := m.checkGroupLocked(OpUpsertHabit, h.GroupID); err != nil {
		return err
	}
	h.Frequency.Weekdays = append(h.Frequency.Weekdays[:0:0], h.Frequency.Weekdays...)
	for i := range m.data.Habits {
		if m.data.Habits[i].ID == h.ID {
			m.data.Habits[i] = h
			return nil
		}
	}
	m.data.Habits = append(m.data.Habits, h)
	return nil
}

func (m *Memory) UpsertReward(ctx context.Context, r flywheel.Reward) error {
	if err := m.begin(ctx, OpUpsertReward); err != nil {
		return err
	}
	defer m.mu.Unlock()

	if err := m.checkGroupLocked(OpUpsertReward, r.GroupID); err != nil {
		return err
	}
	for i := range m.data.Rewards {
		if m.data.Rewards[i].ID == r.ID {
			m.data.Rewards[i] = r
			return nil
		}
	}
	m.data.Rewards = append(m.data.Rewards, r)
	return nil
}

// =============================================================================
// DELETES
// =============================================================================

// DeleteGroup refuses while any habit, reward, energy event or redemption
// still points at the group.
func (m *Memory) DeleteGroup(ctx context.Context, id flywheel.GroupID) error {
	if err := m.begin(ctx, OpDeleteGroup); err != nil {
		return err
	}
	defer m.mu.Unlock()

	if m.groupReferencedLocked(id) {
		return &flywheel.AdapterError{Op: string(OpDeleteGroup), Err: flywheel.ErrGroupInUse}
	}
	groups := m.data.Groups[:0]
	for _, g := range m.data.Groups {
		if g.ID != id {
			groups = append(groups, g)
		}
	}
	m.data.Groups = groups
	return nil
}

// DeleteHabit removes the habit row. Its completions stay behind.
func (m *Memory) DeleteHabit(ctx context.Context, id flywheel.HabitID) error {
	if err := m.begin(ctx, OpDeleteHabit); err != nil {
		return err
	}
	defer m.mu.Unlock()

	habits := m.data.Habits[:0]
	for _, h := range m.data.Habits {
		if h.ID != id {
			habits = append(habits, h)
		}
	}
	m.data.Habits = habits
	return nil
}

// DeleteReward removes the reward row. Its redemptions stay behind.
func (m *Memory) DeleteReward(ctx context.Context, id flywheel.RewardID) error {
	if err := m.begin(ctx, OpDeleteReward); err != nil {
		return err
	}
	defer m.mu.Unlock()

	rewards := m.data.Rewards[:0]
	for _, r := range m.data.Rewards {
		if r.ID != id {
			rewards = append(rewards, r)
		}
	}
	m.data.Rewards = rewards
	return nil
}

// =============================================================================
// LEDGER BATCHES
// =============================================================================

func (m *Memory) AppendCompletion(ctx context.Context, b flywheel.CompletionBatch) error {
	if err := m.begin(ctx, OpAppendCompletion); err != nil {
		return err
	}
	defer m.mu.Unlock()

	b.At = flywheel.Stamp(b.At)
	return m.withTxLocked(func() error {
		if err := m.checkGroupLocked(OpAppendCompletion, b.GroupID); err != nil {
			return err
		}
		m.data.Completions = append(m.data.Completions, b.Completion())
		m.data.EnergyEvents = append(m.data.EnergyEvents, b.Energy())
		return nil
	})
}

// AppendRedemption is guarded: the reward must exist and not be redeemed yet,
// and the scope balance must cover the cost at the moment of writing.
func (m *Memory) AppendRedemption(ctx context.Context, b flywheel.RedemptionBatch) error {
	if err := m.begin(ctx, OpAppendRedemption); err != nil {
		return err
	}
	defer m.mu.Unlock()

	b.At = flywheel.Stamp(b.At)
	return m.withTxLocked(func() error {
		idx := -1
		for i := range m.data.Rewards {
			if m.data.Rewards[i].ID == b.RewardID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &flywheel.AdapterError{Op: string(OpAppendRedemption), Err: flywheel.ErrRewardNotFound}
		}
		if m.data.Rewards[idx].Redeemed {
			return &flywheel.AdapterError{Op: string(OpAppendRedemption), Err: flywheel.ErrAlreadyRedeemed}
		}
		balance := flywheel.ComputeBalances(m.data.EnergyEvents, m.data.GroupIDs()).Group(b.GroupID)
		if balance < b.EnergyCost {
			return &flywheel.AdapterError{
				Op:  string(OpAppendRedemption),
				Err: &flywheel.InsufficientEnergyError{GroupID: b.GroupID, Available: balance, Required: b.EnergyCost},
			}
		}

		m.data.Redemptions = append(m.data.Redemptions, b.Redemption())
		m.data.EnergyEvents = append(m.data.EnergyEvents, b.Energy())
		at := b.At
		m.data.Rewards[idx].Redeemed = true
		m.data.Rewards[idx].RedeemedAt = &at
		return nil
	})
}

// =============================================================================
// INTERNALS
// =============================================================================

// withTxLocked runs fn against the live data and restores a snapshot if fn
// fails. Caller holds m.mu.
func (m *Memory) withTxLocked(fn func() error) error {
	snapshot := m.data.Clone()
	if err := fn(); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) checkGroupLocked(op Op, id flywheel.GroupID) error {
	if id.IsGlobal() {
		return nil
	}
	for _, g := range m.data.Groups {
		if g.ID == id {
			return nil
		}
	}
	return &flywheel.AdapterError{Op: string(op), Err: fmt.Errorf("%w: %s", flywheel.ErrGroupNotFound, id)}
}

func (m *Memory) groupReferencedLocked(id flywheel.GroupID) bool {
	for _, h := range m.data.Habits {
		if h.GroupID == id {
			return true
		}
	}
	for _, r := range m.data.Rewards {
		if r.GroupID == id {
			return true
		}
	}
	for _, e := range m.data.EnergyEvents {
		if e.GroupID == id {
			return true
		}
	}
	for _, r := range m.data.Redemptions {
		if r.GroupID == id {
			return true
		}
	}
	return false
}

/*
store.go - Remote store contract

PURPOSE:
  Defines the boundary between the cache engine and the backend that holds
  one account's rows. The backend is a dumb row store: it enforces
  referential integrity and atomic batches, nothing else.

KEY INTERFACE:
  RemoteStore: bulk load, single-row upserts and deletes, and the two
  ledger batches (completion and redemption).

ATOMIC BATCHES:
  AppendCompletion writes the completion event and its energy gain as one
  unit. AppendRedemption writes the redemption event, its energy spend and
  the reward's redeemed flag as one unit. A reader must never observe a
  completion without its gain, or a redeemed flag without its spend.

FAILURES:
  Every method may fail with an AdapterError (network, permission, timeout,
  referential block). No method retries. Timeouts come from the ctx the
  caller passes in.

IMPLEMENTATIONS:
  - flywheel/store/memory.go: In-memory, for tests and demos
  - store/sqldb: SQLite and PostgreSQL
*/
package flywheel

import (
	"context"
	"time"
)

// =============================================================================
// REMOTE STORE - One account's rows
// =============================================================================

// RemoteStore is scoped to a single authenticated account.
type RemoteStore interface {
	// BulkLoad reads every row of the account across the six tables.
	BulkLoad(ctx context.Context) (*Dataset, error)

	// Upserts insert or update a single row keyed by id.
	UpsertGroup(ctx context.Context, g Group) error
	UpsertHabit(ctx context.Context, h Habit) error
	UpsertReward(ctx context.Context, r Reward) error

	// DeleteGroup fails with ErrGroupInUse while anything references the group.
	DeleteGroup(ctx context.Context, id GroupID) error
	DeleteHabit(ctx context.Context, id HabitID) error
	DeleteReward(ctx context.Context, id RewardID) error

	// AppendCompletion atomically records a completion and its energy gain.
	AppendCompletion(ctx context.Context, b CompletionBatch) error

	// AppendRedemption atomically records a redemption, its energy spend and
	// flips the reward's redeemed flag.
	AppendRedemption(ctx context.Context, b RedemptionBatch) error
}

// =============================================================================
// BATCHES
// =============================================================================

// CompletionBatch is the unit written when a habit is completed.
type CompletionBatch struct {
	HabitID HabitID
	GroupID GroupID
	Amount  int
	Reason  string
	At      time.Time
}

// Completion returns the completion event of the batch.
func (b CompletionBatch) Completion() HabitCompletion {
	return HabitCompletion{HabitID: b.HabitID, Timestamp: b.At, Completed: true}
}

// Energy returns the energy gain event of the batch.
func (b CompletionBatch) Energy() EnergyEvent {
	return EnergyEvent{Timestamp: b.At, GroupID: b.GroupID, Amount: b.Amount, Kind: EnergyGain, Reason: b.Reason}
}

// RedemptionBatch is the unit written when a reward is redeemed.
type RedemptionBatch struct {
	RewardID   RewardID
	Name       string
	GroupID    GroupID
	EnergyCost int
	At         time.Time
}

// Redemption returns the redemption event of the batch.
func (b RedemptionBatch) Redemption() Redemption {
	return Redemption{RewardID: b.RewardID, Name: b.Name, GroupID: b.GroupID, EnergyCost: b.EnergyCost, Timestamp: b.At}
}

// Energy returns the paired energy spend event of the batch.
func (b RedemptionBatch) Energy() EnergyEvent {
	return EnergyEvent{Timestamp: b.At, GroupID: b.GroupID, Amount: b.EnergyCost, Kind: EnergySpend, Reason: RedemptionReason(b.Name)}
}

// Stamp fills a zero timestamp with the current time.
func Stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now()
	}
	return at
}

/*
ledger.go - Append-only event records

PURPOSE:
  The ledger is the source of truth for everything that happened: habit
  completions, energy gains and spends, and reward redemptions. Balances are
  always derived by folding the energy ledger. There is no separate balance
  field that can drift out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Events are never edited or deleted through normal operation.
  2. PAIRING: Every completion is written together with one energy gain, and
     every redemption together with one energy spend of the same amount.
     Adapters must write each pair as one atomic unit.
  3. ORPHANS ARE FINE: Deleting a habit leaves its completions in place. Any
     reader that joins completions to habits must tolerate a missing habit.

SEE ALSO:
  - balance.go: Fold of EnergyEvent into balances
  - store.go: CompletionBatch and RedemptionBatch atomic writes
*/
package flywheel

import (
	"fmt"
	"time"
)

// =============================================================================
// HABIT COMPLETION
// =============================================================================

type HabitCompletion struct {
	HabitID   HabitID
	Timestamp time.Time
	Completed bool
}

// =============================================================================
// ENERGY EVENT
// =============================================================================

type EnergyKind string

const (
	EnergyGain  EnergyKind = "gain"
	EnergySpend EnergyKind = "spend"
)

// EnergyEvent is one entry of the energy ledger. Amount is always positive;
// the sign comes from Kind.
type EnergyEvent struct {
	Timestamp time.Time
	GroupID   GroupID
	Amount    int
	Kind      EnergyKind
	Reason    string
}

// Signed returns the contribution of the event to its scope balance.
func (e EnergyEvent) Signed() int {
	if e.Kind == EnergySpend {
		return -e.Amount
	}
	return e.Amount
}

// =============================================================================
// REDEMPTION
// =============================================================================

// Redemption records a successful reward redemption. Name, GroupID and
// EnergyCost are copied from the reward so the record survives its deletion.
type Redemption struct {
	RewardID   RewardID
	Name       string
	GroupID    GroupID
	EnergyCost int
	Timestamp  time.Time
}

// =============================================================================
// REASONS
// =============================================================================

// CompletionReason is the energy ledger reason written for a habit completion.
func CompletionReason(habitName string) string {
	return fmt.Sprintf("Completed habit: %s", habitName)
}

// RedemptionReason is the energy ledger reason written for a redemption.
func RedemptionReason(rewardName string) string {
	return fmt.Sprintf("Redeemed reward: %s", rewardName)
}

// CompletionCount returns how many completed events the log holds for a habit.
func CompletionCount(log []HabitCompletion, id HabitID) int {
	n := 0
	for _, c := range log {
		if c.HabitID == id && c.Completed {
			n++
		}
	}
	return n
}

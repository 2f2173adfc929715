/*
balance.go - Energy balance derivation

PURPOSE:
  Folds the energy ledger into one balance per group plus the global pool
  balance. This is a pure reducer: no validation, no clamping. A negative
  balance can only appear if a caller skipped the redemption check.

KEY PROPERTIES:
  - Every known group starts at 0, so idle groups are present, not absent.
  - Order independent: addition is commutative, any permutation of the
    ledger yields the same Balances.
  - Events for a group that is not in the known set are still folded under
    that group id.

EXAMPLE:
  events: [{g1, gain 10}, {global, gain 5}, {g1, spend 3}]
  PerGroup[g1] = 7, Global = 5, Total() = 12
*/
package flywheel

// =============================================================================
// BALANCES
// =============================================================================

// Balances is the derived energy of every scope. Groups without events are
// present with 0.
type Balances struct {
	PerGroup map[GroupID]int
	Global   int
}

// ComputeBalances folds energy events into per-group and global balances.
func ComputeBalances(events []EnergyEvent, groups []GroupID) Balances {
	b := Balances{PerGroup: make(map[GroupID]int, len(groups))}
	for _, id := range groups {
		b.PerGroup[id] = 0
	}
	for _, e := range events {
		if e.GroupID.IsGlobal() {
			b.Global += e.Signed()
			continue
		}
		b.PerGroup[e.GroupID] += e.Signed()
	}
	return b
}

// Group returns the balance of a scope: the global pool balance for
// GlobalPool, the group balance otherwise (0 if unknown).
func (b Balances) Group(id GroupID) int {
	if id.IsGlobal() {
		return b.Global
	}
	return b.PerGroup[id]
}

// Total returns the sum of every group balance plus the global pool.
func (b Balances) Total() int {
	total := b.Global
	for _, v := range b.PerGroup {
		total += v
	}
	return total
}

// Clone returns a deep copy.
func (b Balances) Clone() Balances {
	out := Balances{PerGroup: make(map[GroupID]int, len(b.PerGroup)), Global: b.Global}
	for k, v := range b.PerGroup {
		out.PerGroup[k] = v
	}
	return out
}

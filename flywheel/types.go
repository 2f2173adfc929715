/*
Package flywheel provides the core habit/energy model and its pure derivations.

PURPOSE:
  This package contains the ledger model (groups, habits, rewards and the
  append-only event logs), the balance aggregator that derives energy
  balances from the energy ledger, and the recurrence evaluator that decides
  which habits are still due today. It has no knowledge of caching, HTTP or
  any particular database.

KEY CONCEPTS IN THIS FILE (types.go):
  - GroupID/HabitID/RewardID: Type-safe identifiers
  - Group, Habit, Reward: Mutable entities owned by one account
  - Frequency: The recurrence rule attached to a habit
  - Dataset: Everything the remote store holds for one account

SCOPES:
  Every habit, reward and energy event belongs either to a named group or to
  the global pool. The global pool is the zero GroupID (GlobalPool), so a
  zero-value entity is in the global pool by default.

SEE ALSO:
  - ledger.go: Append-only event records
  - balance.go: Balance derivation from the energy ledger
  - recurrence.go: Due-today evaluation
  - store.go: Remote store contract
*/
package flywheel

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GroupID string
type HabitID string
type RewardID string

// GlobalPool is the scope of habits, rewards and energy that belong to no group.
const GlobalPool GroupID = ""

// IsGlobal reports whether the id denotes the global pool.
func (g GroupID) IsGlobal() bool { return g == GlobalPool }

// =============================================================================
// ENTITIES
// =============================================================================

type Group struct {
	ID   GroupID
	Name string
}

type Habit struct {
	ID          HabitID
	Name        string
	GroupID     GroupID // GlobalPool = public pool
	Frequency   Frequency
	EnergyValue int
}

type Reward struct {
	ID          RewardID
	Name        string
	GroupID     GroupID // GlobalPool = redeemable with global energy
	EnergyCost  int
	Description string

	// Once Redeemed is set the reward is inert; there is no re-arming.
	Redeemed   bool
	RedeemedAt *time.Time
}

// =============================================================================
// FREQUENCY - Recurrence rule of a habit
// =============================================================================

type FrequencyType string

const (
	FrequencyDaily   FrequencyType = "daily"
	FrequencyWeekly  FrequencyType = "weekly"
	FrequencyMonthly FrequencyType = "monthly"
	FrequencyCustom  FrequencyType = "custom"
)

// Frequency is a tagged variant. Times applies to every type; Weekdays only to
// weekly and Period (in days) only to custom.
//
// Description is kept in sync with the structured fields by whoever produces
// the Frequency (see package factory). The evaluator never reads it.
type Frequency struct {
	Type        FrequencyType  `json:"type" yaml:"type"`
	Times       int            `json:"times" yaml:"times"`
	Period      int            `json:"period,omitempty" yaml:"period,omitempty"`
	Weekdays    []time.Weekday `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	Description string         `json:"description" yaml:"description"`
}

// Daily returns a daily frequency without description.
func Daily(times int) Frequency { return Frequency{Type: FrequencyDaily, Times: times} }

// Weekly returns a weekly frequency without description.
func Weekly(times int, weekdays ...time.Weekday) Frequency {
	return Frequency{Type: FrequencyWeekly, Times: times, Weekdays: weekdays}
}

// Monthly returns a monthly frequency without description.
func Monthly(times int) Frequency { return Frequency{Type: FrequencyMonthly, Times: times} }

// Custom returns a frequency of times per period days without description.
func Custom(times, periodDays int) Frequency {
	return Frequency{Type: FrequencyCustom, Times: times, Period: periodDays}
}

// =============================================================================
// DATASET - Full account contents as returned by a bulk load
// =============================================================================

type Dataset struct {
	Groups       []Group
	Habits       []Habit
	Rewards      []Reward
	Completions  []HabitCompletion
	EnergyEvents []EnergyEvent
	Redemptions  []Redemption
}

// Clone returns a deep copy; slices and reward timestamps are not shared.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return &Dataset{}
	}
	c := &Dataset{
		Groups:       append([]Group(nil), d.Groups...),
		Habits:       make([]Habit, len(d.Habits)),
		Rewards:      make([]Reward, len(d.Rewards)),
		Completions:  append([]HabitCompletion(nil), d.Completions...),
		EnergyEvents: append([]EnergyEvent(nil), d.EnergyEvents...),
		Redemptions:  append([]Redemption(nil), d.Redemptions...),
	}
	for i, h := range d.Habits {
		h.Frequency.Weekdays = append([]time.Weekday(nil), h.Frequency.Weekdays...)
		c.Habits[i] = h
	}
	for i, r := range d.Rewards {
		if r.RedeemedAt != nil {
			at := *r.RedeemedAt
			r.RedeemedAt = &at
		}
		c.Rewards[i] = r
	}
	return c
}

// GroupIDs returns the ids of all groups in the dataset.
func (d *Dataset) GroupIDs() []GroupID {
	ids := make([]GroupID, len(d.Groups))
	for i, g := range d.Groups {
		ids[i] = g.ID
	}
	return ids
}

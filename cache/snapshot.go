package cache

import (
	"time"

	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// SNAPSHOT - Immutable view of one account
// =============================================================================

// Snapshot is never modified after it is published. Patches and reloads
// build a new Snapshot and swap it in, so a reader holding one always sees a
// consistent dataset with balances derived from exactly that dataset.
type Snapshot struct {
	Data     *flywheel.Dataset
	Balances flywheel.Balances

	// FetchedAt is when the last full load completed. Patches keep it.
	// Zero means nothing has been loaded.
	FetchedAt time.Time

	// Version increases with every published snapshot.
	Version uint64
}

func emptySnapshot(version uint64) *Snapshot {
	return &Snapshot{
		Data:     &flywheel.Dataset{},
		Balances: flywheel.ComputeBalances(nil, nil),
		Version:  version,
	}
}

func newSnapshot(ds *flywheel.Dataset, fetchedAt time.Time, version uint64) *Snapshot {
	return &Snapshot{
		Data:      ds,
		Balances:  flywheel.ComputeBalances(ds.EnergyEvents, ds.GroupIDs()),
		FetchedAt: fetchedAt,
		Version:   version,
	}
}

// Loaded reports whether the snapshot came from a successful load.
func (s *Snapshot) Loaded() bool { return !s.FetchedAt.IsZero() }

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration { return now.Sub(s.FetchedAt) }

func (s *Snapshot) Group(id flywheel.GroupID) (flywheel.Group, bool) {
	for _, g := range s.Data.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return flywheel.Group{}, false
}

func (s *Snapshot) Habit(id flywheel.HabitID) (flywheel.Habit, bool) {
	for _, h := range s.Data.Habits {
		if h.ID == id {
			return h, true
		}
	}
	return flywheel.Habit{}, false
}

func (s *Snapshot) Reward(id flywheel.RewardID) (flywheel.Reward, bool) {
	for _, r := range s.Data.Rewards {
		if r.ID == id {
			return r, true
		}
	}
	return flywheel.Reward{}, false
}

package app

import (
	"sort"
	"time"

	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// HISTORY - Ledger entries bucketed by local day
// =============================================================================

// HistoryFilter restricts history to one scope. A nil Group means all scopes.
type HistoryFilter struct {
	Group *flywheel.GroupID
}

// ForGroup returns a filter for one scope.
func ForGroup(id flywheel.GroupID) HistoryFilter { return HistoryFilter{Group: &id} }

// CompletionEntry is a completion joined with its habit and group as they
// are now. A completion whose habit was deleted is Orphaned and has no name.
type CompletionEntry struct {
	HabitID   flywheel.HabitID
	HabitName string
	GroupID   flywheel.GroupID
	GroupName string
	Timestamp time.Time
	Orphaned  bool
}

// Day holds one local calendar day of entries, newest first.
type Day[T any] struct {
	Date    string
	Entries []T
}

// History is the three ledgers, each bucketed by day, newest day first.
type History struct {
	Completions []Day[CompletionEntry]
	Energy      []Day[flywheel.EnergyEvent]
	Redemptions []Day[flywheel.Redemption]
}

// History returns the ledgers of the current snapshot in the facade's local
// time zone. Orphaned completions only appear when the filter has no group.
func (s *State) History(f HistoryFilter) History {
	snap := s.Snapshot()
	loc := s.Now().Location()

	habits := make(map[flywheel.HabitID]flywheel.Habit, len(snap.Data.Habits))
	for _, h := range snap.Data.Habits {
		habits[h.ID] = h
	}
	groups := make(map[flywheel.GroupID]string, len(snap.Data.Groups))
	for _, g := range snap.Data.Groups {
		groups[g.ID] = g.Name
	}

	var completions []CompletionEntry
	for _, c := range snap.Data.Completions {
		if !c.Completed {
			continue
		}
		e := CompletionEntry{HabitID: c.HabitID, Timestamp: c.Timestamp}
		if h, ok := habits[c.HabitID]; ok {
			e.HabitName = h.Name
			e.GroupID = h.GroupID
			e.GroupName = groups[h.GroupID]
		} else {
			e.Orphaned = true
		}
		if f.Group != nil && (e.Orphaned || e.GroupID != *f.Group) {
			continue
		}
		completions = append(completions, e)
	}

	var energy []flywheel.EnergyEvent
	for _, e := range snap.Data.EnergyEvents {
		if f.Group == nil || e.GroupID == *f.Group {
			energy = append(energy, e)
		}
	}

	var redemptions []flywheel.Redemption
	for _, r := range snap.Data.Redemptions {
		if f.Group == nil || r.GroupID == *f.Group {
			redemptions = append(redemptions, r)
		}
	}

	return History{
		Completions: byDay(completions, loc, func(e CompletionEntry) time.Time { return e.Timestamp }),
		Energy:      byDay(energy, loc, func(e flywheel.EnergyEvent) time.Time { return e.Timestamp }),
		Redemptions: byDay(redemptions, loc, func(r flywheel.Redemption) time.Time { return r.Timestamp }),
	}
}

func byDay[T any](entries []T, loc *time.Location, at func(T) time.Time) []Day[T] {
	sorted := append([]T(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return at(sorted[i]).After(at(sorted[j])) })

	days := []Day[T]{}
	for _, e := range sorted {
		key := flywheel.DayKey(at(e).In(loc))
		if n := len(days); n > 0 && days[n-1].Date == key {
			days[n-1].Entries = append(days[n-1].Entries, e)
			continue
		}
		days = append(days, Day[T]{Date: key, Entries: []T{e}})
	}
	return days
}

package app

import (
	"context"
	"strings"

	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// GROUP OPERATIONS (Tier A)
// =============================================================================

// AddGroup creates a group. On success the snapshot holds the group with a
// zero balance immediately, without a reload.
func (s *State) AddGroup(ctx context.Context, name string) (flywheel.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return flywheel.Group{}, flywheel.Invalid("name", "must not be empty")
	}
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Group{}, err
	}

	g := flywheel.Group{ID: flywheel.GroupID(s.newID()), Name: name}
	if err := sess.Remote().UpsertGroup(ctx, g); err != nil {
		return flywheel.Group{}, writeFailed("AddGroup", err)
	}
	s.patch(sess, func(d *flywheel.Dataset) { putGroup(d, g) })
	return g, nil
}

// UpdateGroup renames a group.
func (s *State) UpdateGroup(ctx context.Context, id flywheel.GroupID, name string) (flywheel.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return flywheel.Group{}, flywheel.Invalid("name", "must not be empty")
	}
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Group{}, err
	}
	g, ok := s.Snapshot().Group(id)
	if !ok {
		return flywheel.Group{}, flywheel.ErrGroupNotFound
	}

	g.Name = name
	if err := sess.Remote().UpsertGroup(ctx, g); err != nil {
		return flywheel.Group{}, writeFailed("UpdateGroup", err, "group", id)
	}
	s.patch(sess, func(d *flywheel.Dataset) { putGroup(d, g) })
	return g, nil
}

// DeleteGroup removes a group. The remote store refuses while habits,
// rewards or ledger entries still reference it; the error then matches
// both ErrGroupInUse and ErrAdapter, and the snapshot is untouched.
func (s *State) DeleteGroup(ctx context.Context, id flywheel.GroupID) error {
	sess, err := s.engine.Session()
	if err != nil {
		return err
	}
	if _, ok := s.Snapshot().Group(id); !ok {
		return flywheel.ErrGroupNotFound
	}

	if err := sess.Remote().DeleteGroup(ctx, id); err != nil {
		return writeFailed("DeleteGroup", err, "group", id)
	}
	s.patch(sess, func(d *flywheel.Dataset) {
		groups := d.Groups[:0]
		for _, g := range d.Groups {
			if g.ID != id {
				groups = append(groups, g)
			}
		}
		d.Groups = groups
	})
	return nil
}

// putGroup replaces the group with the same id or appends it.
func putGroup(d *flywheel.Dataset, g flywheel.Group) {
	for i := range d.Groups {
		if d.Groups[i].ID == g.ID {
			d.Groups[i] = g
			return
		}
	}
	d.Groups = append(d.Groups, g)
}

// =============================================================================
// GROUP QUERIES
// =============================================================================

// Groups returns all groups in load order.
func (s *State) Groups() []flywheel.Group {
	return append([]flywheel.Group{}, s.Snapshot().Data.Groups...)
}

// Group looks up a group by id.
func (s *State) Group(id flywheel.GroupID) (flywheel.Group, bool) {
	return s.Snapshot().Group(id)
}

package app

import (
	"context"
	"strings"

	"github.com/warp/habit-flywheel/flywheel"
	"github.com/warp/habit-flywheel/logger"
	"github.com/warp/habit-flywheel/rewards"
)

// =============================================================================
// INPUTS
// =============================================================================

// RewardInput describes a new reward.
type RewardInput struct {
	Name        string
	GroupID     flywheel.GroupID
	EnergyCost  int
	Description string
}

// RewardUpdate changes the non-nil fields of a reward. The redeemed flag is
// not editable.
type RewardUpdate struct {
	Name        *string
	GroupID     *flywheel.GroupID
	EnergyCost  *int
	Description *string
}

// =============================================================================
// REWARD OPERATIONS (Tier B)
// =============================================================================

// AddReward creates an unredeemed reward and schedules a reload.
func (s *State) AddReward(ctx context.Context, in RewardInput) (flywheel.Reward, error) {
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Reward{}, err
	}
	r := flywheel.Reward{
		ID:          flywheel.RewardID(s.newID()),
		Name:        in.Name,
		GroupID:     in.GroupID,
		EnergyCost:  in.EnergyCost,
		Description: in.Description,
	}
	if r, err = s.validReward(r); err != nil {
		return flywheel.Reward{}, err
	}

	if err := sess.Remote().UpsertReward(ctx, r); err != nil {
		return flywheel.Reward{}, writeFailed("AddReward", err)
	}
	s.afterWrite(sess)
	return r, nil
}

// UpdateReward applies the non-nil fields of u and schedules a reload.
func (s *State) UpdateReward(ctx context.Context, id flywheel.RewardID, u RewardUpdate) (flywheel.Reward, error) {
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Reward{}, err
	}
	r, ok := s.Snapshot().Reward(id)
	if !ok {
		return flywheel.Reward{}, flywheel.ErrRewardNotFound
	}

	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.GroupID != nil {
		r.GroupID = *u.GroupID
	}
	if u.EnergyCost != nil {
		r.EnergyCost = *u.EnergyCost
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if r, err = s.validReward(r); err != nil {
		return flywheel.Reward{}, err
	}

	if err := sess.Remote().UpsertReward(ctx, r); err != nil {
		return flywheel.Reward{}, writeFailed("UpdateReward", err, "reward", id)
	}
	s.afterWrite(sess)
	return r, nil
}

// DeleteReward removes a reward. Its redemptions stay in the ledger.
func (s *State) DeleteReward(ctx context.Context, id flywheel.RewardID) error {
	sess, err := s.engine.Session()
	if err != nil {
		return err
	}
	if _, ok := s.Snapshot().Reward(id); !ok {
		return flywheel.ErrRewardNotFound
	}

	if err := sess.Remote().DeleteReward(ctx, id); err != nil {
		return writeFailed("DeleteReward", err, "reward", id)
	}
	s.afterWrite(sess)
	return nil
}

// RedeemReward spends the reward's cost from its scope and marks it
// redeemed. The cached balance is checked first; a refusal makes no remote
// call. On success the redemption, the spend and the flag are written as
// one batch and a reload is scheduled.
func (s *State) RedeemReward(ctx context.Context, id flywheel.RewardID) (flywheel.Redemption, error) {
	sess, err := s.engine.Session()
	if err != nil {
		return flywheel.Redemption{}, err
	}
	snap := s.Snapshot()
	r, ok := snap.Reward(id)
	if !ok {
		return flywheel.Redemption{}, flywheel.ErrRewardNotFound
	}
	if err := rewards.Authorize(snap.Balances.Group(r.GroupID), r); err != nil {
		logger.Debug("redemption refused", "reward", id, "error", err)
		return flywheel.Redemption{}, err
	}

	batch := flywheel.RedemptionBatch{
		RewardID:   r.ID,
		Name:       r.Name,
		GroupID:    r.GroupID,
		EnergyCost: r.EnergyCost,
		At:         s.Now(),
	}
	if err := sess.Remote().AppendRedemption(ctx, batch); err != nil {
		return flywheel.Redemption{}, writeFailed("RedeemReward", err, "reward", id)
	}
	s.afterWrite(sess)
	return batch.Redemption(), nil
}

func (s *State) validReward(r flywheel.Reward) (flywheel.Reward, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return r, flywheel.Invalid("name", "must not be empty")
	}
	if r.EnergyCost < 1 {
		return r, flywheel.Invalid("energy_cost", "must be at least 1")
	}
	if !r.GroupID.IsGlobal() {
		if _, ok := s.Snapshot().Group(r.GroupID); !ok {
			return r, flywheel.ErrGroupNotFound
		}
	}
	return r, nil
}

// =============================================================================
// REWARD QUERIES
// =============================================================================

// Rewards returns all rewards in load order.
func (s *State) Rewards() []flywheel.Reward {
	return append([]flywheel.Reward{}, s.Snapshot().Data.Rewards...)
}

// Reward looks up a reward by id.
func (s *State) Reward(id flywheel.RewardID) (flywheel.Reward, bool) {
	return s.Snapshot().Reward(id)
}

// RewardsByGroup returns the rewards of one scope.
func (s *State) RewardsByGroup(id flywheel.GroupID) []flywheel.Reward {
	return rewards.InGroup(s.Snapshot().Data.Rewards, id)
}

// AvailableRewards returns every unredeemed reward.
func (s *State) AvailableRewards() []flywheel.Reward {
	return rewards.Available(s.Snapshot().Data.Rewards)
}

// AvailableRewardsIn returns the unredeemed rewards of one scope.
func (s *State) AvailableRewardsIn(id flywheel.GroupID) []flywheel.Reward {
	return rewards.AvailableIn(s.Snapshot().Data.Rewards, id)
}

// RedeemedRewards returns every redeemed reward.
func (s *State) RedeemedRewards() []flywheel.Reward {
	return rewards.Redeemed(s.Snapshot().Data.Rewards)
}

// RedeemedRewardsIn returns the redeemed rewards of one scope.
func (s *State) RedeemedRewardsIn(id flywheel.GroupID) []flywheel.Reward {
	return rewards.RedeemedIn(s.Snapshot().Data.Rewards, id)
}

// Redemptions returns the redemption log in load order.
func (s *State) Redemptions() []flywheel.Redemption {
	return append([]flywheel.Redemption{}, s.Snapshot().Data.Redemptions...)
}

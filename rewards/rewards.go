/*
Package rewards holds the reward-side rules: who may redeem what, and how
far a balance is from affording a reward.

AUTHORIZATION:
  A reward is redeemable when it has not been redeemed yet and the balance
  of its scope (its group, or the global pool) covers its energy cost.
  Authorize is pure: the caller supplies the balance from its snapshot, so a
  refusal costs no remote call.

PROGRESS:
  Progress is the percentage of the cost the balance covers, capped at 100
  and floored at 0, rounded to one decimal place. It uses decimal
  arithmetic so 1/3 of a reward renders as 33.3, not 33.33333333333333.

USAGE:
  if err := rewards.Authorize(snapshot.Balances.Group(r.GroupID), r); err != nil {
      return err // ErrAlreadyRedeemed or *InsufficientEnergyError
  }

SEE ALSO:
  - app/rewards.go: RedeemReward drives Authorize
  - flywheel/errors.go: InsufficientEnergyError
*/
package rewards

import (
	"github.com/shopspring/decimal"
	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// AUTHORIZATION
// =============================================================================

// Authorize checks a redemption of r against the balance of r's scope.
// A reward costing less than 1 is never redeemable.
func Authorize(balance int, r flywheel.Reward) error {
	if r.Redeemed {
		return flywheel.ErrAlreadyRedeemed
	}
	if r.EnergyCost < 1 {
		return flywheel.Invalid("energy_cost", "must be at least 1")
	}
	if balance < r.EnergyCost {
		return &flywheel.InsufficientEnergyError{
			GroupID:   r.GroupID,
			Available: balance,
			Required:  r.EnergyCost,
		}
	}
	return nil
}

// Affordable reports whether Authorize would accept the redemption.
func Affordable(balance int, r flywheel.Reward) bool {
	return Authorize(balance, r) == nil
}

// Shortfall returns how much energy is missing, 0 if the balance suffices.
func Shortfall(balance int, r flywheel.Reward) int {
	if balance >= r.EnergyCost {
		return 0
	}
	return r.EnergyCost - balance
}

// =============================================================================
// PROGRESS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Progress returns min(100, balance/cost*100), floored at 0, one decimal place.
// A cost below 1 is not a valid reward and reports 0.
func Progress(balance, cost int) decimal.Decimal {
	if cost < 1 {
		return decimal.Zero
	}
	if balance <= 0 {
		return decimal.Zero
	}
	p := decimal.NewFromInt(int64(balance)).
		Div(decimal.NewFromInt(int64(cost))).
		Mul(hundred)
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p.Round(1)
}

// =============================================================================
// FILTERS
// =============================================================================
// All filters preserve input order and never return nil.

// Available returns the rewards that have not been redeemed.
func Available(rs []flywheel.Reward) []flywheel.Reward {
	return filter(rs, func(r flywheel.Reward) bool { return !r.Redeemed })
}

// Redeemed returns the rewards that have been redeemed.
func Redeemed(rs []flywheel.Reward) []flywheel.Reward {
	return filter(rs, func(r flywheel.Reward) bool { return r.Redeemed })
}

// InGroup returns the rewards scoped to g. GlobalPool selects global rewards.
func InGroup(rs []flywheel.Reward, g flywheel.GroupID) []flywheel.Reward {
	return filter(rs, func(r flywheel.Reward) bool { return r.GroupID == g })
}

// AvailableIn returns the unredeemed rewards scoped to g.
func AvailableIn(rs []flywheel.Reward, g flywheel.GroupID) []flywheel.Reward {
	return filter(rs, func(r flywheel.Reward) bool { return !r.Redeemed && r.GroupID == g })
}

// RedeemedIn returns the redeemed rewards scoped to g.
func RedeemedIn(rs []flywheel.Reward, g flywheel.GroupID) []flywheel.Reward {
	return filter(rs, func(r flywheel.Reward) bool { return r.Redeemed && r.GroupID == g })
}

func filter(rs []flywheel.Reward, keep func(flywheel.Reward) bool) []flywheel.Reward {
	out := make([]flywheel.Reward, 0, len(rs))
	for _, r := range rs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

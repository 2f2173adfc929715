package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/habit-flywheel/flywheel"
)

// =============================================================================
// ACCOUNT - RemoteStore scoped to one user
// =============================================================================

// Account implements flywheel.RemoteStore over one user's rows.
type Account struct {
	s      *Store
	userID string
}

var _ flywheel.RemoteStore = (*Account)(nil)

// UserID returns the owner of the rows this handle reads and writes.
func (a *Account) UserID() string { return a.userID }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (a *Account) exec(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, a.s.dialect.rebind(query), args...)
}

// =============================================================================
// BULK LOAD
// =============================================================================

// BulkLoad reads all six tables inside one transaction so the dataset is a
// consistent cut.
func (a *Account) BulkLoad(ctx context.Context) (*flywheel.Dataset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, flywheel.WrapAdapter("BulkLoad", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	ds := &flywheel.Dataset{}
	loaders := []func(context.Context, querier, *flywheel.Dataset) error{
		a.loadGroups, a.loadHabits, a.loadRewards,
		a.loadCompletions, a.loadEnergy, a.loadRedemptions,
	}
	for _, load := range loaders {
		if err := load(ctx, tx, ds); err != nil {
			return nil, flywheel.WrapAdapter("BulkLoad", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, flywheel.WrapAdapter("BulkLoad", err)
	}
	return ds, nil
}

func (a *Account) query(ctx context.Context, db querier, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, a.s.dialect.rebind(query), a.userID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (a *Account) loadGroups(ctx context.Context, db querier, ds *flywheel.Dataset) error {
	return a.query(ctx, db, `
		SELECT id, name FROM habit_groups
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, func(rows *sql.Rows) error {
		var g flywheel.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return fmt.Errorf("failed to scan group: %w", err)
		}
		ds.Groups = append(ds.Groups, g)
		return nil
	})
}

func (a *Account) loadHabits(ctx context.Context, db querier, ds *flywheel.Dataset) error {
	return a.query(ctx, db, `
		SELECT id, name, group_id, frequency_json, energy_value FROM habits
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, func(rows *sql.Rows) error {
		var (
			h         flywheel.Habit
			groupID   sql.NullString
			frequency string
		)
		if err := rows.Scan(&h.ID, &h.Name, &groupID, &frequency, &h.EnergyValue); err != nil {
			return fmt.Errorf("failed to scan habit: %w", err)
		}
		if err := json.Unmarshal([]byte(frequency), &h.Frequency); err != nil {
			return fmt.Errorf("habit %s: bad frequency: %w", h.ID, err)
		}
		h.GroupID = flywheel.GroupID(groupID.String)
		ds.Habits = append(ds.Habits, h)
		return nil
	})
}

func (a *Account) loadRewards(ctx context.Context, db querier, ds *flywheel.Dataset) error {
	return a.query(ctx, db, `
		SELECT id, name, group_id, energy_cost, description, redeemed, redeemed_at FROM rewards
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, func(rows *sql.Rows) error {
		var (
			r          flywheel.Reward
			groupID    sql.NullString
			redeemedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &groupID, &r.EnergyCost, &r.Description, &r.Redeemed, &redeemedAt); err != nil {
			return fmt.Errorf("failed to scan reward: %w", err)
		}
		r.GroupID = flywheel.GroupID(groupID.String)
		if redeemedAt.Valid {
			t, err := parseTime(redeemedAt.String)
			if err != nil {
				return fmt.Errorf("reward %s: bad redeemed_at: %w", r.ID, err)
			}
			r.RedeemedAt = &t
		}
		ds.Rewards = append(ds.Rewards, r)
		return nil
	})
}

func (a *Account) loadCompletions(ctx context.Context, db querier, ds *flywheel.Dataset) error {
	return a.query(ctx, db, `
		SELECT habit_id, completed, timestamp FROM habit_logs
		WHERE user_id = ?
		ORDER BY timestamp ASC
	`, func(rows *sql.Rows) error {
		var (
			c  flywheel.HabitCompletion
			ts string
		)
		if err := rows.Scan(&c.HabitID, &c.Completed, &ts); err != nil {
			return fmt.Errorf("failed to scan completion: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return err
		}
		c.Timestamp = t
		ds.Completions = append(ds.Completions, c)
		return nil
	})
}

func (a *Account) loadEnergy(ctx context.Context, db querier, ds *flywheel.Dataset) error {
	return a.query(ctx, db, `
		SELECT group_id, amount, kind, reason, timestamp FROM energy_logs
		WHERE user_id = ?
		ORDER BY timestamp ASC
	`, func(rows *sql.Rows) error {
		var (
			e       flywheel.EnergyEvent
			groupID sql.NullString
			ts      string
		)
		if err := rows.Scan(&groupID, &e.Amount, &e.Kind, &e.Reason, &ts); err != nil {
			return fmt.Errorf("failed to scan energy event: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return err
		}
		e.GroupID = flywheel.GroupID(groupID.String)
		e.Timestamp = t
		ds.EnergyEvents = append(ds.EnergyEvents, e)
		return nil
	})
}

func (a *Account) loadRedemptions(ctx context.Context, db querier, ds *flywheel.Dataset) error {
	return a.query(ctx, db, `
		SELECT reward_id, reward_name, group_id, energy_cost, timestamp FROM redeemed_rewards_log
		WHERE user_id = ?
		ORDER BY timestamp ASC
	`, func(rows *sql.Rows) error {
		var (
			r       flywheel.Redemption
			groupID sql.NullString
			ts      string
		)
		if err := rows.Scan(&r.RewardID, &r.Name, &groupID, &r.EnergyCost, &ts); err != nil {
			return fmt.Errorf("failed to scan redemption: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return err
		}
		r.GroupID = flywheel.GroupID(groupID.String)
		r.Timestamp = t
		ds.Redemptions = append(ds.Redemptions, r)
		return nil
	})
}

// =============================================================================
// UPSERTS
// =============================================================================

func (a *Account) UpsertGroup(ctx context.Context, g flywheel.Group) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	_, err := a.exec(ctx, a.s.db, `
		INSERT INTO habit_groups (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
		WHERE habit_groups.user_id = excluded.user_id
	`, string(g.ID), a.userID, g.Name, formatTime(time.Now()))
	return a.wrap("UpsertGroup", err)
}

func (a *Account) UpsertHabit(ctx context.Context, h flywheel.Habit) error {
	frequency, err := json.Marshal(h.Frequency)
	if err != nil {
		return flywheel.WrapAdapter("UpsertHabit", err)
	}

	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	_, err = a.exec(ctx, a.s.db, `
		INSERT INTO habits (id, user_id, name, group_id, frequency_json, energy_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			group_id = excluded.group_id,
			frequency_json = excluded.frequency_json,
			energy_value = excluded.energy_value
		WHERE habits.user_id = excluded.user_id
	`, string(h.ID), a.userID, h.Name, nullString(string(h.GroupID)), string(frequency), h.EnergyValue, formatTime(time.Now()))
	return a.wrap("UpsertHabit", err)
}

func (a *Account) UpsertReward(ctx context.Context, r flywheel.Reward) error {
	var redeemedAt sql.NullString
	if r.RedeemedAt != nil {
		redeemedAt = nullString(formatTime(*r.RedeemedAt))
	}

	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	_, err := a.exec(ctx, a.s.db, `
		INSERT INTO rewards (id, user_id, name, group_id, energy_cost, description, redeemed, redeemed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			group_id = excluded.group_id,
			energy_cost = excluded.energy_cost,
			description = excluded.description,
			redeemed = excluded.redeemed,
			redeemed_at = excluded.redeemed_at
		WHERE rewards.user_id = excluded.user_id
	`, string(r.ID), a.userID, r.Name, nullString(string(r.GroupID)), r.EnergyCost, r.Description, r.Redeemed, redeemedAt, formatTime(time.Now()))
	return a.wrap("UpsertReward", err)
}

// =============================================================================
// DELETES
// =============================================================================

func (a *Account) DeleteGroup(ctx context.Context, id flywheel.GroupID) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	_, err := a.exec(ctx, a.s.db, `DELETE FROM habit_groups WHERE id = ? AND user_id = ?`, string(id), a.userID)
	return a.wrap("DeleteGroup", err)
}

func (a *Account) DeleteHabit(ctx context.Context, id flywheel.HabitID) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	_, err := a.exec(ctx, a.s.db, `DELETE FROM habits WHERE id = ? AND user_id = ?`, string(id), a.userID)
	return a.wrap("DeleteHabit", err)
}

func (a *Account) DeleteReward(ctx context.Context, id flywheel.RewardID) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	_, err := a.exec(ctx, a.s.db, `DELETE FROM rewards WHERE id = ? AND user_id = ?`, string(id), a.userID)
	return a.wrap("DeleteReward", err)
}

// =============================================================================
// LEDGER BATCHES
// =============================================================================

// AppendCompletion writes the completion and its energy gain in one transaction.
func (a *Account) AppendCompletion(ctx context.Context, b flywheel.CompletionBatch) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	b.At = flywheel.Stamp(b.At)
	err := a.withTx(ctx, func(tx *sql.Tx) error {
		c := b.Completion()
		if _, err := a.exec(ctx, tx, `
			INSERT INTO habit_logs (id, user_id, habit_id, completed, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, uuid.NewString(), a.userID, string(c.HabitID), c.Completed, formatTime(c.Timestamp)); err != nil {
			return fmt.Errorf("failed to append completion: %w", err)
		}
		return a.appendEnergy(ctx, tx, b.Energy())
	})
	return a.wrap("AppendCompletion", err)
}

// AppendRedemption writes the redemption, its energy spend and the redeemed
// flag in one transaction. Inside the transaction it re-checks that the
// reward is still unredeemed and that the scope balance covers the cost.
// On postgres the account's advisory lock is held until commit, so
// redemptions from other processes against the same balance wait their turn.
func (a *Account) AppendRedemption(ctx context.Context, b flywheel.RedemptionBatch) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	b.At = flywheel.Stamp(b.At)
	err := a.withTx(ctx, func(tx *sql.Tx) error {
		if lock := a.s.dialect.accountLock(); lock != "" {
			if _, err := a.exec(ctx, tx, lock, a.userID); err != nil {
				return fmt.Errorf("failed to lock account: %w", err)
			}
		}

		var redeemed bool
		err := tx.QueryRowContext(ctx, a.s.dialect.rebind(`
			SELECT redeemed FROM rewards WHERE id = ? AND user_id = ?`+a.s.dialect.forUpdate()),
			string(b.RewardID), a.userID,
		).Scan(&redeemed)
		if errors.Is(err, sql.ErrNoRows) {
			return flywheel.ErrRewardNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read reward: %w", err)
		}
		if redeemed {
			return flywheel.ErrAlreadyRedeemed
		}

		balance, err := a.balance(ctx, tx, b.GroupID)
		if err != nil {
			return err
		}
		if balance < b.EnergyCost {
			return &flywheel.InsufficientEnergyError{GroupID: b.GroupID, Available: balance, Required: b.EnergyCost}
		}

		r := b.Redemption()
		if _, err := a.exec(ctx, tx, `
			INSERT INTO redeemed_rewards_log (id, user_id, reward_id, reward_name, group_id, energy_cost, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), a.userID, string(r.RewardID), r.Name, nullString(string(r.GroupID)), r.EnergyCost, formatTime(r.Timestamp)); err != nil {
			return fmt.Errorf("failed to append redemption: %w", err)
		}
		if err := a.appendEnergy(ctx, tx, b.Energy()); err != nil {
			return err
		}

		res, err := a.exec(ctx, tx, `
			UPDATE rewards SET redeemed = ?, redeemed_at = ?
			WHERE id = ? AND user_id = ? AND redeemed = ?
		`, true, formatTime(b.At), string(b.RewardID), a.userID, false)
		if err != nil {
			return fmt.Errorf("failed to mark reward redeemed: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return flywheel.ErrAlreadyRedeemed
		}
		return nil
	})
	return a.wrap("AppendRedemption", err)
}

func (a *Account) appendEnergy(ctx context.Context, tx execer, e flywheel.EnergyEvent) error {
	_, err := a.exec(ctx, tx, `
		INSERT INTO energy_logs (id, user_id, group_id, amount, kind, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), a.userID, nullString(string(e.GroupID)), e.Amount, string(e.Kind), e.Reason, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append energy event: %w", err)
	}
	return nil
}

// balance folds the scope's energy ledger in SQL.
func (a *Account) balance(ctx context.Context, tx querier, group flywheel.GroupID) (int, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN kind = 'spend' THEN -amount ELSE amount END), 0)
		FROM energy_logs WHERE user_id = ? AND group_id = ?`
	args := []any{a.userID, string(group)}
	if group.IsGlobal() {
		query = `
		SELECT COALESCE(SUM(CASE WHEN kind = 'spend' THEN -amount ELSE amount END), 0)
		FROM energy_logs WHERE user_id = ? AND group_id IS NULL`
		args = args[:1]
	}

	var total int64
	if err := tx.QueryRowContext(ctx, a.s.dialect.rebind(query), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to compute balance: %w", err)
	}
	return int(total), nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (a *Account) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// wrap turns driver errors into AdapterErrors, mapping foreign key
// violations to ErrGroupInUse on delete and ErrGroupNotFound on insert.
func (a *Account) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if a.s.dialect.isForeignKeyViolation(err) {
		if op == "DeleteGroup" {
			return &flywheel.AdapterError{Op: op, Err: flywheel.ErrGroupInUse}
		}
		return &flywheel.AdapterError{Op: op, Err: fmt.Errorf("%w: %v", flywheel.ErrGroupNotFound, err)}
	}
	return flywheel.WrapAdapter(op, err)
}

/*
Package sqldb provides a SQL-backed implementation of flywheel.RemoteStore.

PURPOSE:
  Persists groups, habits, rewards and the three append-only logs for many
  accounts in one database. Every row carries the owning user_id and every
  query is scoped by it, so an Account handle only ever sees its own rows.

DIALECTS:
  sqlite3:  github.com/mattn/go-sqlite3, opened with foreign keys and WAL
  postgres: github.com/lib/pq, "?" placeholders rebound to "$n"

KEY TABLES:
  habit_groups:         Named groups
  habits:               Habits (group_id nullable = global pool)
  rewards:              Rewards with redeemed flag
  habit_logs:           Completion events
  energy_logs:          Energy gains and spends
  redeemed_rewards_log: Redemption events

REFERENTIAL RULES:
  habits, rewards, energy_logs and redeemed_rewards_log reference
  habit_groups(id). Deleting a group that anything still points at fails
  with a foreign key violation, reported as flywheel.ErrGroupInUse.
  habit_logs.habit_id and redeemed_rewards_log.reward_id carry no foreign
  key: deleting a habit or reward leaves its history in place.

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order equals time order.

USAGE:
  db, err := sqldb.Open(sqldb.DriverSQLite, "./data/flywheel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  remote := db.Account("user-123")

SEE ALSO:
  - flywheel/store.go: RemoteStore contract
  - flywheel/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Store owns the database handle. Use Account to get a RemoteStore.
type Store struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
}

// New opens a SQLite database at path. Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	return Open(DriverSQLite, path)
}

// Open connects with the given driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" a single database and serializes writers.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, dialect: d}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.dialect.driver
}

// Account returns the RemoteStore for one user's rows.
func (s *Store) Account(userID string) *Account {
	return &Account{s: s, userID: userID}
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS habit_groups (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_habit_groups_user
		ON habit_groups(user_id);

	CREATE TABLE IF NOT EXISTS habits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		group_id TEXT REFERENCES habit_groups(id),
		frequency_json TEXT NOT NULL,
		energy_value INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_habits_user
		ON habits(user_id);

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		group_id TEXT REFERENCES habit_groups(id),
		energy_cost INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		redeemed BOOLEAN NOT NULL DEFAULT FALSE,
		redeemed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_user
		ON rewards(user_id);

	-- Append-only. No foreign key: completions outlive their habit.
	CREATE TABLE IF NOT EXISTS habit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		habit_id TEXT NOT NULL,
		completed BOOLEAN NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_habit_logs_user_time
		ON habit_logs(user_id, timestamp);

	-- Append-only energy ledger. group_id NULL = global pool.
	CREATE TABLE IF NOT EXISTS energy_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		group_id TEXT REFERENCES habit_groups(id),
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	-- Balance queries (hot path of the redemption guard)
	CREATE INDEX IF NOT EXISTS idx_energy_logs_user_group
		ON energy_logs(user_id, group_id);

	CREATE TABLE IF NOT EXISTS redeemed_rewards_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		reward_name TEXT NOT NULL,
		group_id TEXT REFERENCES habit_groups(id),
		energy_cost INTEGER NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redeemed_rewards_log_user
		ON redeemed_rewards_log(user_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

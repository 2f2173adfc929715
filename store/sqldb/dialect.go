package sqldb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pq "github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// =============================================================================
// DIALECTS
// =============================================================================
// Queries are written once with "?" placeholders. The dialect rewrites them
// for the target driver and knows how that driver reports a foreign key
// violation.

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type dialect struct {
	driver string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return dialect{driver: driver}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// rebind converts "?" placeholders to "$1", "$2", ... for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is appended to selects that must lock the row they read.
// SQLite serializes writers on its own and has no row locks.
func (d dialect) forUpdate() string {
	if d.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// accountLock returns the statement that serializes balance-checked writes
// of one account across processes for the rest of the transaction. SQLite
// allows a single writer per database and needs none.
func (d dialect) accountLock() string {
	if d.driver == DriverPostgres {
		return "SELECT pg_advisory_xact_lock(hashtext(?))"
	}
	return ""
}

// isForeignKeyViolation reports whether err came from a referential constraint.
func (d dialect) isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23503"
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// sqliteDSN enables foreign keys and WAL on a SQLite path or ":memory:".
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL"
}

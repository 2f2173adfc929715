// Package secrets keeps the database connection string in the OS keyring so
// it never has to appear on the command line or in the environment.
package secrets

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/zalando/go-keyring"
)

const (
	// Service is the keyring service name.
	Service = "habit-flywheel"
	// User is the keyring entry holding the DSN.
	User = "database-dsn"
)

var (
	// ErrNotFound is returned when no DSN is stored in the keyring
	ErrNotFound = errors.New("dsn not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// GetDSN retrieves the database DSN from the OS keyring.
func GetDSN() (string, error) {
	dsn, err := keyring.Get(Service, User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return dsn, nil
}

// SetDSN stores the database DSN in the OS keyring.
func SetDSN(dsn string) error {
	if dsn == "" {
		return errors.New("dsn cannot be empty")
	}
	if err := keyring.Set(Service, User, dsn); err != nil {
		return fmt.Errorf("failed to store dsn in keyring: %w", err)
	}
	return nil
}

// DeleteDSN removes the database DSN from the OS keyring.
func DeleteDSN() error {
	if err := keyring.Delete(Service, User); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete dsn from keyring: %w", err)
	}
	return nil
}

// Mask hides the password of a URL-style DSN for display. Other DSNs are
// returned unchanged.
func Mask(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

/*
errors.go - Centralized error types

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapters, the cache engine and the facade return these (or wrap them)
  so callers can classify failures with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Adapter failures - any failed remote store call (network, backend,
     permission, timeout). Never retried by the core.
  2. Referential block - group delete refused because something still
     references the group. Reported as an adapter failure.
  3. Authorization failures - no active session, or not enough energy for a
     redemption. Detected locally before any remote call.
  4. Client errors - invalid input, unknown ids, already redeemed rewards.

SEE ALSO:
  - store.go: Adapters wrap failures in AdapterError
*/
package flywheel

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAdapter matches every failure reported by a remote store adapter.
	ErrAdapter = errors.New("remote store failure")

	// ErrGroupInUse is returned when deleting a group that habits, rewards or
	// ledger events still reference.
	ErrGroupInUse = errors.New("group is still referenced")

	// ErrNoSession is returned by mutations attempted without a signed-in account.
	ErrNoSession = errors.New("no active session")

	// ErrInsufficientEnergy is returned when a redemption exceeds the scope balance.
	ErrInsufficientEnergy = errors.New("insufficient energy")

	// ErrAlreadyRedeemed is returned when redeeming a reward a second time.
	ErrAlreadyRedeemed = errors.New("reward already redeemed")

	ErrGroupNotFound  = errors.New("group not found")
	ErrHabitNotFound  = errors.New("habit not found")
	ErrRewardNotFound = errors.New("reward not found")

	// ErrInvalidInput is returned for malformed entity fields.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AdapterError wraps a failed remote store call.
// errors.Is(err, ErrAdapter) is true for every AdapterError.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func (e *AdapterError) Is(target error) bool { return target == ErrAdapter }

// WrapAdapter wraps err as an AdapterError unless it is nil or already one.
func WrapAdapter(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}
	return &AdapterError{Op: op, Err: err}
}

// InsufficientEnergyError provides details about a balance shortage.
type InsufficientEnergyError struct {
	GroupID   GroupID
	Available int
	Required  int
}

func (e *InsufficientEnergyError) Error() string {
	return fmt.Sprintf("insufficient energy: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientEnergyError) Unwrap() error { return ErrInsufficientEnergy }

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Invalid builds an InvalidInputError.
func Invalid(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsAdapterFailure returns true for remote store failures, including
// referential blocks.
func IsAdapterFailure(err error) bool {
	return errors.Is(err, ErrAdapter)
}

// IsAuthorization returns true for failures detected locally before any
// remote call: missing session or insufficient energy.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNoSession) || errors.Is(err, ErrInsufficientEnergy)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrHabitNotFound) ||
		errors.Is(err, ErrRewardNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadyRedeemed) ||
		errors.Is(err, ErrInsufficientEnergy)
}

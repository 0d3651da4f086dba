// ABOUTME: Sentinel errors and SQLite error classification for the storage layer
// ABOUTME: Distinguishes blocked transactions from hard aborts and quota exhaustion

package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the SQLite backend cannot be used at all
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// ErrConnectionFailed is returned when opening or upgrading the database fails
var ErrConnectionFailed = errors.New("storage connection failed")

// ErrTransactionAborted is returned when a transaction fails to commit
var ErrTransactionAborted = errors.New("transaction aborted")

// ErrTransactionBlocked is returned when a transaction is blocked by another writer
var ErrTransactionBlocked = errors.New("transaction blocked")

// ErrQuotaExceeded is returned when the database or disk is full
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// classifyTxError wraps a transaction failure in the matching sentinel.
// stage names the failing step ("begin", "commit") for log readability.
func classifyTxError(stage string, err error) error {
	switch {
	case isBusy(err):
		return fmt.Errorf("%s: %w: %w", stage, ErrTransactionBlocked, err)
	case isFull(err):
		return fmt.Errorf("%s: %w: %w", stage, ErrQuotaExceeded, err)
	default:
		return fmt.Errorf("%s: %w: %w", stage, ErrTransactionAborted, err)
	}
}

// isBusy checks if the error is SQLite reporting a lock held elsewhere
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY")
}

// isFull checks if the error is SQLite reporting storage exhaustion
func isFull(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database or disk is full") ||
		strings.Contains(errStr, "SQLITE_FULL")
}

// IsConstraintViolation checks if the error is a SQLite constraint
// violation. These are caller mistakes (duplicate ids, broken
// references), not backend failures.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

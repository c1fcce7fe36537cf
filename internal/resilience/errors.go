// Package resilience provides retry with backoff for contended database
// writes. Performance-record updates must never silently drop an increment,
// so update conflicts are retried here rather than surfaced.
package resilience

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConflictError wraps an error that is a concurrent-update conflict and
// therefore safe (and required) to retry.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string { return e.Err.Error() }

func (e *ConflictError) Unwrap() error { return e.Err }

// NewConflictError marks err as a retryable update conflict.
func NewConflictError(err error) *ConflictError {
	return &ConflictError{Err: err}
}

// IsRetryable reports whether the error (or anything in its chain) is a
// concurrent-update conflict: an explicit ConflictError, a SQLite busy/locked
// condition, or a Postgres serialization failure / deadlock.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ce *ConflictError
	if errors.As(err, &ce) {
		return true
	}

	// Postgres: serialization_failure, deadlock_detected, lock_not_available.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}

	// modernc.org/sqlite surfaces SQLITE_BUSY / SQLITE_LOCKED as strings.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"sqlite_locked",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

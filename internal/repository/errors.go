package repository

import (
	"errors"
	"strings"
)

var (
	// ErrConflict is returned when an insert violates a unique constraint.
	// Callers treat it as an expected concurrency artifact and re-read, so it
	// must stay distinguishable from infrastructure failures.
	ErrConflict = errors.New("unique constraint conflict")

	// ErrNotFound is returned by operations that require an existing row
	// (updates, deletes). Plain lookups never return it; they report absence
	// as a nil row.
	ErrNotFound = errors.New("record not found")
)

// isDuplicateKeyError detects unique-violation errors across the supported
// dialects (Postgres error text/code and SQLite constraint messages).
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "23505")
}

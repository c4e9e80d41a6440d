package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrVersionConflict is returned when an optimistic-concurrency update
	// matched zero rows because the version token was stale
	ErrVersionConflict = errors.New("version conflict")

	// ErrUniqueViolation is returned when an insert hit a unique index
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// mapSQLiteError translates driver constraint errors into repository
// sentinels so callers can match with errors.Is
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrUniqueViolation
		}
	}
	return err
}

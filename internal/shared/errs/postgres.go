package errs

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
	pgSerialization      = "40001"
	pgDeadlockDetected   = "40P01"
)

// FromConstraint turns a lost database race (unique, exclusion, serialization
// or deadlock) into RaceLost. Any other error is returned unchanged.
func FromConstraint(err error, message string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgExclusionViolation, pgSerialization, pgDeadlockDetected:
		return Wrap(KindRaceLost, err, message)
	}
	return err
}

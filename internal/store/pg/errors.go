package pg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"guildhall.org/internal/guild"
)

const (
	pgErrUniqueViolation      = "23505"
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
)

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// retryable reports whether the transaction lost a serialization race and
// can be re-run from scratch.
func retryable(err error) bool {
	pgErr, ok := maybePgError(err)
	if !ok {
		return false
	}
	return pgErr.Code == pgErrSerializationFailure || pgErr.Code == pgErrDeadlockDetected
}

// mapError turns constraint violations into guild.ErrConflict. Domain errors
// pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation, pgErrSerializationFailure, pgErrDeadlockDetected:
			return guild.ErrConflict
		}
	}
	return err
}

package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/retry"
	"github.com/vietddude/resilience/internal/core/txretry"
)

const sqlstateUniqueViolation = "23505"

// TranslateError maps driver errors onto structured failures so callers can
// classify them. Errors that are already structured, and cancellations, pass
// through unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, retry.ErrCanceled) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return failure.Wrap(failure.CodeNotFound, "record not found", err)
	}

	// Conflicts that outlived the transaction retries.
	if sig, ok := txretry.Signature(err); ok {
		return failure.Wrap(failure.CodeConflict, "transaction conflict", err).
			WithDetail("signature", sig)
	}

	if code, ok := sqlstate(err); ok {
		if code == sqlstateUniqueViolation {
			return failure.Wrap(failure.CodeConflict, "duplicate key", err).
				WithDetail("sqlstate", code)
		}
		return failure.Wrap(failure.CodeDatabase, "database error", err).
			WithDetail("sqlstate", code)
	}

	return failure.Wrap(failure.CodeDatabase, "database error", err)
}

func sqlstate(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

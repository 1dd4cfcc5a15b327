package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/retry"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      failure.Code
		retryable bool
	}{
		{"no rows", fmt.Errorf("get account: %w", sql.ErrNoRows), failure.CodeNotFound, false},
		{"pq unique", &pq.Error{Code: "23505", Message: "duplicate key"}, failure.CodeConflict, false},
		{"pgx unique", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, failure.CodeConflict, false},
		{"serialization", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, failure.CodeConflict, false},
		{"pq other", &pq.Error{Code: "42P01", Message: "relation does not exist"}, failure.CodeDatabase, true},
		{"connection", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), failure.CodeDatabase, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TranslateError(tt.err)
			code, ok := failure.CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.retryable, failure.Classify(err).Retryable)
		})
	}
}

func TestTranslateError_PassThrough(t *testing.T) {
	assert.NoError(t, TranslateError(nil))

	structured := failure.New(failure.CodeBadRequest, "insufficient funds")
	assert.Same(t, structured, TranslateError(structured))

	canceled := &retry.CanceledError{Attempt: 1, Cause: context.Canceled}
	assert.Equal(t, error(canceled), TranslateError(canceled))
}

func TestTranslateError_ConflictRetryableUnderDatabasePolicy(t *testing.T) {
	err := TranslateError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
	assert.True(t, retry.DatabasePolicy.Classify(err).Retryable)
}

func TestAccountRepo_RejectsInvalidInput(t *testing.T) {
	repo := NewAccountRepo(nil, 3, nil)
	ctx := context.Background()

	_, err := repo.Transfer(ctx, "a", "b", 0)
	code, _ := failure.CodeOf(err)
	assert.Equal(t, failure.CodeValidation, code)

	_, err = repo.Transfer(ctx, "a", "a", 10)
	code, _ = failure.CodeOf(err)
	assert.Equal(t, failure.CodeValidation, code)

	_, err = repo.Create(ctx, "", 10)
	code, _ = failure.CodeOf(err)
	assert.Equal(t, failure.CodeValidation, code)

	_, err = repo.Create(ctx, "a", -1)
	code, _ = failure.CodeOf(err)
	assert.Equal(t, failure.CodeValidation, code)
}

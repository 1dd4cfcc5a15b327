package postgres

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/txretry"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	dbURL := os.Getenv("RESILIENCE_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("RESILIENCE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := NewDB(ctx, Config{URL: dbURL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Health(ctx))
	return db
}

func TestAccountRepo_TransferIntegration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db, 5, &sql.TxOptions{Isolation: sql.LevelSerializable})

	from := "acc-" + uuid.NewString()
	to := "acc-" + uuid.NewString()
	_, err := repo.Create(ctx, from, 100)
	require.NoError(t, err)
	_, err = repo.Create(ctx, to, 0)
	require.NoError(t, err)

	_, err = repo.Create(ctx, from, 1)
	code, _ := failure.CodeOf(err)
	assert.Equal(t, failure.CodeConflict, code)

	tr, err := repo.Transfer(ctx, from, to, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), tr.Amount)

	_, err = repo.Transfer(ctx, from, to, 1000)
	code, _ = failure.CodeOf(err)
	assert.Equal(t, failure.CodeBadRequest, code)

	_, err = repo.Transfer(ctx, from, "acc-missing-"+uuid.NewString(), 1)
	code, _ = failure.CodeOf(err)
	assert.Equal(t, failure.CodeNotFound, code)

	a, err := repo.Get(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, int64(60), a.Balance)

	list, err := repo.ListTransfers(ctx, from, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAccountRepo_ConcurrentTransfersIntegration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db, 10, &sql.TxOptions{Isolation: sql.LevelSerializable},
		txretry.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}))

	from := "acc-" + uuid.NewString()
	to := "acc-" + uuid.NewString()
	_, err := repo.Create(ctx, from, 100)
	require.NoError(t, err)
	_, err = repo.Create(ctx, to, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Transfer(ctx, from, to, 10)
		}()
	}
	wg.Wait()

	a, err := repo.Get(ctx, from)
	require.NoError(t, err)
	b, err := repo.Get(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Balance+b.Balance)
}

func TestAccountRepo_GetMissingIntegration(t *testing.T) {
	db := setupDB(t)
	repo := NewAccountRepo(db, 3, nil)

	_, err := repo.Get(context.Background(), "acc-"+uuid.NewString())
	code, ok := failure.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, failure.CodeNotFound, code)
}

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/resilience/internal/core/txretry"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
)

var deadLetterNamespace string

func init() {
	rootCmd.PersistentFlags().StringVar(&deadLetterNamespace, "dlq-namespace", "resilience", "dead letter queue namespace in redis")
}

func openDB(ctx context.Context) (*postgres.DB, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func openAccountRepo(db *postgres.DB) (*postgres.AccountRepo, error) {
	txOpts, err := cfg.Transaction.TxOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid transaction config: %w", err)
	}
	return postgres.NewAccountRepo(db, cfg.Transaction.MaxRetries, txOpts, txretry.WithLogger(logger)), nil
}

// openRedis returns nil when no redis URL is configured.
func openRedis(ctx context.Context) *redisclient.Client {
	if cfg.Redis.URL == "" {
		return nil
	}
	rc, err := redisclient.NewClient(ctx, cfg.Redis,
		redisclient.WithExecutor(newExecutor()),
		redisclient.WithPolicy(policyByName("network")),
	)
	if err != nil {
		slog.Warn("Redis unavailable, continuing without dead letter queue", "error", err)
		return nil
	}
	return rc
}

// Package txretry re-submits whole storage transactions that fail with a
// serialization conflict or a deadlock.
//
// Unlike package retry, retryability here does not come from the failure
// classifier: only the storage-engine signatures listed in Signatures are
// retried, with a fixed 2^n * 100ms wait. Atomicity is the storage client's
// job; this package only decides how many times and how soon to try again.
package txretry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/resilience/internal/core/logging"
	"github.com/vietddude/resilience/internal/core/metrics"
	"github.com/vietddude/resilience/internal/core/retry"
)

// BaseDelay is the unit of the transaction backoff.
const BaseDelay = 100 * time.Millisecond

const (
	SignatureSerialization  = "serialization_failure"
	SignatureDeadlock       = "deadlock_detected"
	SignatureCouldNotSerial = "could not serialize access"
)

// Signatures are the message fragments that mark a transaction as safe to
// re-submit.
var Signatures = []string{SignatureSerialization, SignatureDeadlock, SignatureCouldNotSerial}

// Postgres SQLSTATE codes for the same conditions, as reported by pgx.
var sqlstateSignatures = map[string]string{
	"40001": SignatureSerialization,
	"40P01": SignatureDeadlock,
}

// Client starts transactions. *sqlx.DB satisfies it.
type Client interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TxFunc is the body of a transaction. It must not commit or roll back tx.
type TxFunc[T any] func(ctx context.Context, tx *sqlx.Tx) (T, error)

type config struct {
	log   *logging.Logger
	sleep retry.SleepFunc
}

// Option configures Run.
type Option func(*config)

// WithLogger sets the failure logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn retry.SleepFunc) Option {
	return func(c *config) { c.sleep = fn }
}

// Delay returns the wait after failed attempt n (1-based).
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	return time.Duration(1<<attempt) * BaseDelay
}

// Signature returns the conflict signature carried by err, if any.
// lib/pq errors are matched by condition name and pgx errors by SQLSTATE;
// everything else by message.
func Signature(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch name := pqErr.Code.Name(); name {
		case SignatureSerialization, SignatureDeadlock:
			return name, true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sig, ok := sqlstateSignatures[pgErr.Code]; ok {
			return sig, true
		}
	}

	msg := err.Error()
	for _, sig := range Signatures {
		if strings.Contains(msg, sig) {
			return sig, true
		}
	}
	return "", false
}

// Run executes fn inside a transaction, trying at most maxRetries times in
// total. Only failures matching a Signature are retried; anything else is
// returned from the first attempt. A maxRetries below 1 allows one attempt.
func Run[T any](
	ctx context.Context,
	client Client,
	maxRetries int,
	opts *sql.TxOptions,
	fn TxFunc[T],
	options ...Option,
) (T, error) {
	cfg := config{log: logging.New(nil), sleep: retry.Sleep}
	for _, opt := range options {
		opt(&cfg)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := runOnce(ctx, client, opts, fn)
		if err == nil {
			if attempt > 1 {
				cfg.log.Info(ctx, "transaction committed after retry", "attempts", attempt)
			}
			metrics.TransactionOutcomes.WithLabelValues("committed").Inc()
			return v, nil
		}

		sig, retryable := Signature(err)
		if !retryable {
			cfg.log.LogFailure(ctx, err, "transaction failed", map[string]any{"attempts": attempt})
			metrics.TransactionOutcomes.WithLabelValues("failed").Inc()
			return zero, err
		}
		if attempt >= maxRetries {
			cfg.log.LogFailure(ctx, err, "transaction conflict persisted after retries", map[string]any{
				"attempts":  attempt,
				"signature": sig,
			})
			metrics.TransactionOutcomes.WithLabelValues("exhausted").Inc()
			return zero, err
		}

		delay := Delay(attempt)
		metrics.TransactionRetries.WithLabelValues(sig).Inc()
		cfg.log.Debug(ctx, "retrying transaction",
			"attempt", attempt,
			"signature", sig,
			"delay", delay,
		)
		if cerr := cfg.sleep(ctx, delay); cerr != nil {
			metrics.TransactionOutcomes.WithLabelValues("canceled").Inc()
			return zero, &retry.CanceledError{Attempt: uint(attempt), Cause: cerr, Last: err}
		}
	}
}

func runOnce[T any](ctx context.Context, client Client, opts *sql.TxOptions, fn TxFunc[T]) (v T, err error) {
	tx, err := client.BeginTxx(ctx, opts)
	if err != nil {
		return v, err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	v, err = fn(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return v, err
	}
	if err = tx.Commit(); err != nil {
		return v, err
	}
	return v, nil
}

// Package retry runs a fallible operation under a bounded, classified retry
// policy with exponential backoff.
//
// Each call is sequential: one attempt at a time, with the backoff wait as the
// only suspension point. Independent calls share no mutable state and may run
// concurrently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/resilience/internal/core/backoff"
	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/logging"
	"github.com/vietddude/resilience/internal/core/metrics"
)

// ErrCanceled is matched by errors.Is on every *CanceledError.
var ErrCanceled = errors.New("retry canceled")

// CanceledError is returned when the context ends before or between attempts.
// It does not unwrap to the last operation error.
type CanceledError struct {
	// Attempt is the number of attempts made before cancellation.
	Attempt uint
	// Cause is the context error.
	Cause error
	// Last is the error of the most recent attempt, if any.
	Last error
}

func (e *CanceledError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("retry canceled after %d attempts: %v", e.Attempt, e.Cause)
	}
	return fmt.Sprintf("retry canceled after %d attempts: %v (last error: %v)", e.Attempt, e.Cause, e.Last)
}

func (e *CanceledError) Unwrap() []error {
	return []error{ErrCanceled, e.Cause}
}

// Operation is a unit of work that may be retried.
type Operation[T any] func(ctx context.Context) (T, error)

// SleepFunc waits for d or until ctx ends, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Outcome describes one finished attempt.
type Outcome struct {
	Attempt uint
	Delay   time.Duration
	Elapsed time.Duration
	Err     error
}

// Executor holds the collaborators shared by retried calls.
type Executor struct {
	log   *logging.Logger
	src   backoff.Source
	sleep SleepFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the failure logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithSource sets the jitter source.
func WithSource(src backoff.Source) Option {
	return func(e *Executor) { e.src = src }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		log:   logging.New(nil),
		src:   backoff.DefaultSource,
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExecutor = NewExecutor()

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run is Do for operations without a result.
func (e *Executor) Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do invokes op until it succeeds, fails with a non-retryable error, or has
// been tried p.MaxRetries+1 times. It returns op's value or the last error
// unchanged. Cancellation of ctx before an attempt or during a backoff wait
// returns a *CanceledError. A nil e uses a default executor.
func Do[T any](ctx context.Context, e *Executor, p Policy, op Operation[T]) (T, error) {
	var zero T
	if e == nil {
		e = defaultExecutor
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}
	p = p.withDefaults()

	if err := ctx.Err(); err != nil {
		cerr := &CanceledError{Cause: err}
		e.log.LogFailure(ctx, cerr, "operation canceled", map[string]any{
			"operation": p.Name,
			"attempts":  0,
		})
		metrics.OperationOutcomes.WithLabelValues(p.Name, metrics.OutcomeCanceled).Inc()
		return zero, cerr
	}

	var delay time.Duration
	for attempt := uint(1); ; attempt++ {
		metrics.Attempts.WithLabelValues(p.Name).Inc()
		start := time.Now()
		v, err := invoke(ctx, op)
		out := Outcome{Attempt: attempt, Delay: delay, Elapsed: time.Since(start), Err: err}

		if err == nil {
			if attempt > 1 {
				e.log.Info(ctx, "operation recovered",
					"operation", p.Name,
					"attempts", attempt,
				)
				metrics.OperationOutcomes.WithLabelValues(p.Name, metrics.OutcomeRecovered).Inc()
			} else {
				metrics.OperationOutcomes.WithLabelValues(p.Name, metrics.OutcomeSuccess).Inc()
			}
			return v, nil
		}

		if attempt > p.MaxRetries {
			if p.OnExhausted != nil {
				p.OnExhausted(err)
			}
			e.log.LogFailure(ctx, err, "operation failed after retries", outcomeFields(p, out))
			metrics.OperationOutcomes.WithLabelValues(p.Name, metrics.OutcomeExhausted).Inc()
			return zero, err
		}

		class := p.Classify(err)
		if !class.Retryable {
			e.log.LogFailure(ctx, err, "operation failed with non-retryable error", outcomeFields(p, out))
			metrics.OperationOutcomes.WithLabelValues(p.Name, metrics.OutcomeFailedFast).Inc()
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		// Validate guarantees the parameters are in range.
		delay, _ = backoff.Delay(attempt, p.BaseDelay, p.MaxDelay, p.BackoffMultiplier, e.src)
		e.log.Debug(ctx, "retrying operation",
			"operation", p.Name,
			"attempt", attempt,
			"delay", delay,
			"elapsed", out.Elapsed,
			"error", err.Error(),
		)
		metrics.Retries.WithLabelValues(p.Name, string(class.Category)).Inc()
		metrics.BackoffDelay.WithLabelValues(p.Name).Observe(delay.Seconds())

		if serr := e.sleep(ctx, delay); serr != nil {
			cerr := &CanceledError{Attempt: attempt, Cause: serr, Last: err}
			e.log.LogFailure(ctx, cerr, "operation canceled", outcomeFields(p, out))
			metrics.OperationOutcomes.WithLabelValues(p.Name, metrics.OutcomeCanceled).Inc()
			return zero, cerr
		}
	}
}

// invoke runs op, converting a panic into a failure.Exception.
func invoke[T any](ctx context.Context, op Operation[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failure.FromPanic(r)
		}
	}()
	return op(ctx)
}

func outcomeFields(p Policy, out Outcome) map[string]any {
	return map[string]any{
		"operation":  p.Name,
		"attempts":   out.Attempt,
		"elapsed":    out.Elapsed.String(),
		"last_delay": out.Delay.String(),
	}
}

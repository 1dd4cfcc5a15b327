package retry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
)

// DefaultBackoffMultiplier is used when a policy leaves BackoffMultiplier zero.
const DefaultBackoffMultiplier = 2.0

// Policy configures one call site's retry behavior. A Policy is a value and
// is never mutated by the executor.
type Policy struct {
	// Name labels logs and metrics for this call site.
	Name string

	// MaxRetries is the number of retries after the first try.
	MaxRetries uint

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// BackoffMultiplier must be >= 1. Zero means DefaultBackoffMultiplier.
	BackoffMultiplier float64

	// RetryableCodes are retried even when the classifier says otherwise.
	RetryableCodes []failure.Code

	// OnRetry runs before the backoff wait with the 1-based number of the
	// attempt that just failed.
	OnRetry func(attempt uint, err error)

	// OnExhausted runs once when all attempts have failed.
	OnExhausted func(err error)
}

var (
	DefaultPolicy = Policy{
		Name:              "default",
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}

	NetworkPolicy = Policy{
		Name:              "network",
		MaxRetries:        5,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		RetryableCodes:    []failure.Code{failure.CodeUnavailable, failure.CodeExternalService, failure.CodeRateLimited},
	}

	// DatabasePolicy retries optimistic-lock conflicts in addition to
	// transient storage failures.
	DatabasePolicy = Policy{
		Name:              "database",
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2,
		RetryableCodes:    []failure.Code{failure.CodeDatabase, failure.CodeConflict},
	}
)

// Validate reports configuration errors.
func (p Policy) Validate() error {
	p = p.withDefaults()
	var errs []error
	if p.BaseDelay < 0 {
		errs = append(errs, errors.New("baseDelay must be >= 0"))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, errors.New("maxDelay must be >= 0"))
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		errs = append(errs, fmt.Errorf("maxDelay %s must be >= baseDelay %s", p.MaxDelay, p.BaseDelay))
	}
	if p.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("backoffMultiplier must be >= 1, got %v", p.BackoffMultiplier))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid retry policy %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if p.Name == "" {
		p.Name = "default"
	}
	return p
}

// Classify classifies err and applies the RetryableCodes override.
func (p Policy) Classify(err error) failure.Classification {
	c := failure.Classify(err)
	if c.Retryable || len(p.RetryableCodes) == 0 {
		return c
	}
	if code, ok := failure.CodeOf(err); ok && slices.Contains(p.RetryableCodes, code) {
		c.Retryable = true
	}
	return c
}

package retry_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/logging"
	"github.com/vietddude/resilience/internal/core/retry"
)

type Mock struct {
	mock.Mock
}

func (m *Mock) Op(context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

var (
	errRetryable = failure.New(failure.CodeUnavailable, "upstream unavailable")
	errFatal     = failure.New(failure.CodeValidation, "bad input")
)

type zeroSource struct{}

func (zeroSource) Float64() float64 { return 0 }

// recorder captures backoff waits instead of sleeping.
type recorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newExecutor(rec *recorder, buf *bytes.Buffer) *retry.Executor {
	if buf == nil {
		buf = &bytes.Buffer{}
	}
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return retry.NewExecutor(
		retry.WithLogger(logging.New(slog.New(h))),
		retry.WithSource(zeroSource{}),
		retry.WithSleep(rec.sleep),
	)
}

func policy(maxRetries uint) retry.Policy {
	return retry.Policy{
		Name:              "test",
		MaxRetries:        maxRetries,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	}
}

func TestNoRetryOnSuccess(t *testing.T) {
	m := new(Mock)
	m.On("Op").Return("ok", nil)
	rec := &recorder{}

	got, err := retry.Do(context.Background(), newExecutor(rec, nil), policy(3), m.Op)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	m.AssertNumberOfCalls(t, "Op", 1)
	assert.Empty(t, rec.delays)
}

func TestAttemptBound(t *testing.T) {
	for _, n := range []uint{0, 1, 3, 6} {
		m := new(Mock)
		m.On("Op").Return("", errRetryable)
		rec := &recorder{}

		var exhausted []error
		p := policy(n)
		p.OnExhausted = func(err error) { exhausted = append(exhausted, err) }

		_, err := retry.Do(context.Background(), newExecutor(rec, nil), p, m.Op)

		require.ErrorIs(t, err, errRetryable)
		m.AssertNumberOfCalls(t, "Op", int(n)+1)
		assert.Len(t, rec.delays, int(n))
		assert.Equal(t, []error{errRetryable}, exhausted)
	}
}

func TestRetryUntilSuccess(t *testing.T) {
	m := new(Mock)
	m.On("Op").Twice().Return("", errRetryable)
	m.On("Op").Once().Return("done", nil)
	rec := &recorder{}

	var retried []uint
	p := policy(3)
	p.OnRetry = func(attempt uint, err error) {
		assert.ErrorIs(t, err, errRetryable)
		retried = append(retried, attempt)
	}

	var buf bytes.Buffer
	got, err := retry.Do(context.Background(), newExecutor(rec, &buf), p, m.Op)

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	m.AssertNumberOfCalls(t, "Op", 3)
	assert.Equal(t, []uint{1, 2}, retried)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
	assert.Contains(t, buf.String(), "operation recovered")
}

func TestFastFail(t *testing.T) {
	m := new(Mock)
	m.On("Op").Return("", errFatal)
	rec := &recorder{}

	called := false
	p := policy(5)
	p.OnRetry = func(uint, error) { called = true }
	p.OnExhausted = func(error) { called = true }

	var buf bytes.Buffer
	_, err := retry.Do(context.Background(), newExecutor(rec, &buf), p, m.Op)

	require.ErrorIs(t, err, errFatal)
	m.AssertNumberOfCalls(t, "Op", 1)
	assert.False(t, called)
	assert.Empty(t, rec.delays)
	assert.Contains(t, buf.String(), "non-retryable")
}

func TestReclassifiedEachAttempt(t *testing.T) {
	m := new(Mock)
	m.On("Op").Once().Return("", errRetryable)
	m.On("Op").Once().Return("", errFatal)
	m.On("Op").Return("never", nil)

	_, err := retry.Do(context.Background(), newExecutor(&recorder{}, nil), policy(5), m.Op)

	require.ErrorIs(t, err, errFatal)
	m.AssertNumberOfCalls(t, "Op", 2)
}

func TestRetryableCodesOverride(t *testing.T) {
	conflict := failure.New(failure.CodeConflict, "version mismatch")

	m := new(Mock)
	m.On("Op").Once().Return("", conflict)
	m.On("Op").Return("saved", nil)

	p := policy(2)
	p.RetryableCodes = []failure.Code{failure.CodeConflict}

	got, err := retry.Do(context.Background(), newExecutor(&recorder{}, nil), p, m.Op)

	require.NoError(t, err)
	assert.Equal(t, "saved", got)
	m.AssertNumberOfCalls(t, "Op", 2)
}

func TestExhaustedLogsAtClassifiedLevel(t *testing.T) {
	m := new(Mock)
	m.On("Op").Return("", errRetryable)

	var buf bytes.Buffer
	_, err := retry.Do(context.Background(), newExecutor(&recorder{}, &buf), policy(1), m.Op)

	require.Error(t, err)
	assert.Contains(t, buf.String(), `"level":"ERROR","msg":"operation failed after retries"`)
}

func TestCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	m := new(Mock)
	m.On("Op").Return("", errRetryable)

	ex := retry.NewExecutor(
		retry.WithSource(zeroSource{}),
		retry.WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return retry.Sleep(ctx, d)
		}),
	)

	_, err := retry.Do(ctx, ex, policy(5), m.Op)

	require.ErrorIs(t, err, retry.ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errRetryable)

	var ce *retry.CanceledError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint(1), ce.Attempt)
	assert.Equal(t, errRetryable, ce.Last)
	m.AssertNumberOfCalls(t, "Op", 1)
}

func TestCanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := new(Mock)
	var buf bytes.Buffer
	_, err := retry.Do(ctx, newExecutor(&recorder{}, &buf), policy(3), m.Op)

	require.ErrorIs(t, err, retry.ErrCanceled)
	m.AssertNotCalled(t, "Op")
	assert.Contains(t, buf.String(), `"msg":"operation canceled"`)
	assert.Contains(t, buf.String(), `"category":"system"`)
}

func TestCancelDuringBackoffIsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	m := new(Mock)
	m.On("Op").Return("", errRetryable)

	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	ex := retry.NewExecutor(
		retry.WithLogger(logging.New(slog.New(h))),
		retry.WithSource(zeroSource{}),
		retry.WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := retry.Do(ctx, ex, policy(5), m.Op)

	require.ErrorIs(t, err, retry.ErrCanceled)
	assert.Contains(t, buf.String(), `"msg":"operation canceled"`)
	assert.Contains(t, buf.String(), `"operation":"test"`)
}

func TestRealSleepHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := policy(3)
	p.BaseDelay = time.Minute
	p.MaxDelay = time.Hour

	start := time.Now()
	_, err := retry.Do(ctx, retry.NewExecutor(), p, func(context.Context) (int, error) {
		return 0, errRetryable
	})

	require.ErrorIs(t, err, retry.ErrCanceled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPanicIsNonRetryable(t *testing.T) {
	var calls atomic.Int32
	_, err := retry.Do(context.Background(), newExecutor(&recorder{}, nil), policy(3), func(context.Context) (int, error) {
		calls.Add(1)
		var m map[string]int
		m["boom"] = 1
		return 0, nil
	})

	var ex *failure.Exception
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "Panic", ex.Name)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, failure.Classify(err).Operational)
}

func TestPanicWithOperationalMessageIsNotRetried(t *testing.T) {
	for _, v := range []any{"connection timeout", errors.New("invalid state"), "fetch loop broke"} {
		var calls atomic.Int32
		var buf bytes.Buffer
		_, err := retry.Do(context.Background(), newExecutor(&recorder{}, &buf), policy(3), func(context.Context) (int, error) {
			calls.Add(1)
			panic(v)
		})

		var ex *failure.Exception
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, int32(1), calls.Load(), "value %v", v)

		class := failure.Classify(err)
		assert.False(t, class.Operational)
		assert.False(t, class.Retryable)
		assert.Equal(t, failure.SeverityCritical, class.Severity)
		assert.Contains(t, buf.String(), `"msg":"operation failed with non-retryable error"`)
	}
}

func TestInvalidPolicy(t *testing.T) {
	m := new(Mock)
	p := policy(1)
	p.BackoffMultiplier = 0.5

	_, err := retry.Do(context.Background(), newExecutor(&recorder{}, nil), p, m.Op)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoffMultiplier")
	m.AssertNotCalled(t, "Op")
}

func TestRun(t *testing.T) {
	calls := 0
	err := newExecutor(&recorder{}, nil).Run(context.Background(), policy(2), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("network unreachable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*retry.Policy)
		wantErr bool
	}{
		{"defaults", func(*retry.Policy) {}, false},
		{"zero multiplier uses default", func(p *retry.Policy) { p.BackoffMultiplier = 0 }, false},
		{"negative base", func(p *retry.Policy) { p.BaseDelay = -1 }, true},
		{"negative max", func(p *retry.Policy) { p.MaxDelay = -1 }, true},
		{"max below base", func(p *retry.Policy) { p.MaxDelay = time.Millisecond }, true},
		{"multiplier below one", func(p *retry.Policy) { p.BackoffMultiplier = 0.9 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := retry.DefaultPolicy
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	for _, p := range []retry.Policy{retry.DefaultPolicy, retry.NetworkPolicy, retry.DatabasePolicy} {
		assert.NoError(t, p.Validate(), p.Name)
	}
}

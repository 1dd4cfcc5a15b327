package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/resilience/internal/core/failure"
)

func newJSONLogger(buf *bytes.Buffer, opts ...Option) *Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return New(slog.New(h), opts...)
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		severity failure.Severity
		expected slog.Level
	}{
		{failure.SeverityCritical, slog.LevelError},
		{failure.SeverityHigh, slog.LevelError},
		{failure.SeverityMedium, slog.LevelWarn},
		{failure.SeverityLow, slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			assert.Equal(t, tt.expected, LevelFor(tt.severity))
		})
	}
}

func TestLogFailureStructured(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf)

	ctx := WithFields(context.Background(), Fields{CorrelationID: "req-1", UserID: "u-9"})
	err := failure.New(failure.CodeRateLimited, "too many calls").WithDetail("limit", 10)
	l.LogFailure(ctx, err, "quota check failed", map[string]any{"route": "/v1/items"})

	out := decode(t, &buf)
	assert.Equal(t, "WARN", out["level"])
	assert.Equal(t, "quota check failed", out["msg"])
	assert.Equal(t, "req-1", out["correlation_id"])
	assert.Equal(t, "u-9", out["user_id"])
	assert.NotContains(t, out, "session_id")

	errGroup := out["error"].(map[string]any)
	assert.Equal(t, KindStructured, errGroup["kind"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errGroup["code"])
	assert.Equal(t, "too many calls", errGroup["message"])
	assert.NotContains(t, errGroup, "stack")

	class := out["classification"].(map[string]any)
	assert.Equal(t, true, class["retryable"])
	assert.Equal(t, "system", class["category"])

	assert.Equal(t, "/v1/items", out["context"].(map[string]any)["route"])
}

func TestLogFailureExceptionStack(t *testing.T) {
	t.Run("development keeps stack", func(t *testing.T) {
		var buf bytes.Buffer
		newJSONLogger(&buf).LogFailure(context.Background(), failure.NewException("TypeError", "x is undefined"), "render failed", nil)

		out := decode(t, &buf)
		assert.Equal(t, "ERROR", out["level"])
		errGroup := out["error"].(map[string]any)
		assert.Equal(t, "TypeError", errGroup["name"])
		assert.NotEmpty(t, errGroup["stack"])
	})

	t.Run("production drops stack", func(t *testing.T) {
		var buf bytes.Buffer
		newJSONLogger(&buf, WithProduction(true)).LogFailure(context.Background(), failure.NewException("TypeError", "x is undefined"), "render failed", nil)

		errGroup := decode(t, &buf)["error"].(map[string]any)
		assert.NotContains(t, errGroup, "stack")
	})
}

func TestLogFailurePlainError(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf).LogFailure(context.Background(), errors.New("cache warmup skipped"), "startup", nil)

	out := decode(t, &buf)
	assert.Equal(t, "WARN", out["level"])
	errGroup := out["error"].(map[string]any)
	assert.Equal(t, "errors.errorString", errGroup["name"])
	assert.Equal(t, KindException, errGroup["kind"])
}

func TestBuildRecord(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := New(nil, WithClock(func() time.Time { return at }))

	ctx := WithFields(context.Background(), Fields{TraceID: "t-1"})
	r := l.Build(ctx, failure.New(failure.CodeNotFound, "no user"), "lookup", map[string]any{"id": 4})

	assert.Equal(t, slog.LevelInfo, r.Level)
	assert.Equal(t, at, r.Time)
	assert.Equal(t, "t-1", r.Fields.TraceID)
	assert.Equal(t, failure.CodeNotFound, r.Error.Code)
	assert.Equal(t, 4, r.Context["id"])
}

type brokenHandler struct{ panics bool }

func (brokenHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h brokenHandler) Handle(context.Context, slog.Record) error {
	if h.panics {
		panic("sink exploded")
	}
	return errors.New("sink unavailable")
}
func (h brokenHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h brokenHandler) WithGroup(string) slog.Handler      { return h }

func TestLogFailureNeverPropagates(t *testing.T) {
	for _, panics := range []bool{false, true} {
		l := New(slog.New(brokenHandler{panics: panics}))
		assert.NotPanics(t, func() {
			l.LogFailure(context.Background(), errors.New("boom"), "x", nil)
		})
	}
}

func TestWithFieldsMerges(t *testing.T) {
	ctx := WithFields(context.Background(), Fields{CorrelationID: "c", SessionID: "s"})
	ctx = WithFields(ctx, Fields{UserID: "u"})

	f := FieldsFrom(ctx)
	assert.Equal(t, Fields{CorrelationID: "c", UserID: "u", SessionID: "s"}, f)
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, FieldsFrom(ctx).CorrelationID)

	same, again := EnsureCorrelationID(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestFromConfigJSON(t *testing.T) {
	var buf bytes.Buffer
	l := FromConfig(&buf, Config{Level: "warn", Format: "json"})

	l.LogFailure(context.Background(), failure.New(failure.CodeNotFound, "x"), "filtered out", nil)
	assert.Zero(t, buf.Len())

	l.LogFailure(context.Background(), failure.New(failure.CodeUnavailable, "x"), "kept", nil)
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

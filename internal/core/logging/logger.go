// Package logging reports failures as structured slog records whose level is
// derived from the failure's classification.
//
// Correlation values (correlation id, trace id, user id, session id) are
// carried in context.Context via WithFields rather than in process-wide state.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/metrics"
)

// Error kinds recorded in ErrorInfo.Kind.
const (
	KindStructured = "structured"
	KindException  = "exception"
)

// Logger emits failure records through a slog handler.
type Logger struct {
	log        *slog.Logger
	production bool
	now        func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithProduction omits stack traces from emitted records.
func WithProduction(production bool) Option {
	return func(l *Logger) { l.production = production }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New wraps base. A nil base uses slog.Default().
func New(base *slog.Logger, opts ...Option) *Logger {
	if base == nil {
		base = slog.Default()
	}
	l := &Logger{log: base, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromConfig builds a Logger writing to w in the configured format.
func FromConfig(w io.Writer, cfg Config) *Logger {
	return New(slog.New(NewHandler(w, cfg)), WithProduction(cfg.Production))
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	out := *l
	out.log = l.log.With(args...)
	return &out
}

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// LevelFor maps a severity to a log level.
func LevelFor(s failure.Severity) slog.Level {
	switch s {
	case failure.SeverityCritical, failure.SeverityHigh:
		return slog.LevelError
	case failure.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// ErrorInfo is the serialized form of a failure.
type ErrorInfo struct {
	Kind    string
	Code    failure.Code
	Name    string
	Message string
	Details map[string]any
	Stack   string
}

// Record is a single failure log entry before emission.
type Record struct {
	Level          slog.Level
	Message        string
	Time           time.Time
	Classification failure.Classification
	Error          *ErrorInfo
	Context        map[string]any
	Fields         Fields
}

// Build assembles the record LogFailure would emit.
func (l *Logger) Build(ctx context.Context, err error, message string, kv map[string]any) Record {
	class := failure.Classify(err)
	return Record{
		Level:          LevelFor(class.Severity),
		Message:        message,
		Time:           l.now(),
		Classification: class,
		Error:          l.describe(err),
		Context:        kv,
		Fields:         FieldsFrom(ctx),
	}
}

// LogFailure classifies err and emits a record at the matching level. It
// never panics and never reports its own failures.
func (l *Logger) LogFailure(ctx context.Context, err error, message string, kv map[string]any) {
	defer func() { _ = recover() }()
	if ctx == nil {
		ctx = context.Background()
	}
	l.Emit(ctx, l.Build(ctx, err, message, kv))
}

// Emit writes r through the handler. Handler errors are dropped.
func (l *Logger) Emit(ctx context.Context, r Record) {
	metrics.FailuresLogged.WithLabelValues(r.Level.String(), string(r.Classification.Category)).Inc()

	h := l.log.Handler()
	if !h.Enabled(ctx, r.Level) {
		return
	}

	sr := slog.NewRecord(r.Time, r.Level, r.Message, 0)
	sr.AddAttrs(fieldAttrs(r.Fields)...)
	if r.Error != nil {
		sr.AddAttrs(errorAttr(r.Error))
	}
	sr.AddAttrs(slog.Group("classification",
		slog.Bool("operational", r.Classification.Operational),
		slog.Bool("retryable", r.Classification.Retryable),
		slog.String("severity", string(r.Classification.Severity)),
		slog.String("category", string(r.Classification.Category)),
	))
	if len(r.Context) > 0 {
		sr.AddAttrs(contextAttr(r.Context))
	}
	_ = h.Handle(ctx, sr)
}

// Info logs an informational message with correlation fields from ctx.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log.InfoContext(ctx, msg, append(fieldArgs(FieldsFrom(ctx)), args...)...)
}

// Debug logs a debug message with correlation fields from ctx.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log.DebugContext(ctx, msg, append(fieldArgs(FieldsFrom(ctx)), args...)...)
}

func (l *Logger) describe(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var se *failure.Error
	if errors.As(err, &se) {
		return &ErrorInfo{
			Kind:    KindStructured,
			Code:    se.Code,
			Message: se.Message,
			Details: se.Details,
		}
	}
	if ge := failure.FromGRPC(err); ge != nil {
		return &ErrorInfo{
			Kind:    KindStructured,
			Code:    ge.Code,
			Message: ge.Message,
			Details: ge.Details,
		}
	}

	info := &ErrorInfo{Kind: KindException, Message: err.Error()}
	var ex *failure.Exception
	if errors.As(err, &ex) {
		info.Name = ex.Name
		info.Message = ex.Message
		if !l.production {
			info.Stack = string(ex.Stack)
		}
	} else {
		info.Name = strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	}
	return info
}

func errorAttr(e *ErrorInfo) slog.Attr {
	attrs := []any{slog.String("kind", e.Kind)}
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", string(e.Code)))
	}
	if e.Name != "" {
		attrs = append(attrs, slog.String("name", e.Name))
	}
	attrs = append(attrs, slog.String("message", e.Message))
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", e.Details))
	}
	if e.Stack != "" {
		attrs = append(attrs, slog.String("stack", e.Stack))
	}
	return slog.Group("error", attrs...)
}

func contextAttr(kv map[string]any) slog.Attr {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, kv[k]))
	}
	return slog.Group("context", attrs...)
}

func fieldAttrs(f Fields) []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	if f.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlation_id", f.CorrelationID))
	}
	if f.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", f.TraceID))
	}
	if f.UserID != "" {
		attrs = append(attrs, slog.String("user_id", f.UserID))
	}
	if f.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", f.SessionID))
	}
	return attrs
}

func fieldArgs(f Fields) []any {
	attrs := fieldAttrs(f)
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return args
}

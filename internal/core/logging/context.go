package logging

import (
	"context"

	"github.com/google/uuid"
)

// Fields are correlation values inherited by every failure logged under a
// context.
type Fields struct {
	CorrelationID string
	TraceID       string
	UserID        string
	SessionID     string
}

type fieldsKey struct{}

// WithFields returns a context carrying f merged over any fields already
// present. Empty values in f do not clear existing ones.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := FieldsFrom(ctx)
	if f.CorrelationID != "" {
		cur.CorrelationID = f.CorrelationID
	}
	if f.TraceID != "" {
		cur.TraceID = f.TraceID
	}
	if f.UserID != "" {
		cur.UserID = f.UserID
	}
	if f.SessionID != "" {
		cur.SessionID = f.SessionID
	}
	return context.WithValue(ctx, fieldsKey{}, cur)
}

// FieldsFrom returns the fields carried by ctx.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

// EnsureCorrelationID returns ctx unchanged if it already has a correlation
// id, otherwise a derived context with a fresh one.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := FieldsFrom(ctx).CorrelationID; id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithFields(ctx, Fields{CorrelationID: id}), id
}

package failure

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Error is a structured application error.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

// New creates a structured error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a structured error around cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail returns a copy of e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

// Exception is a generic failure identified only by a name and a message.
type Exception struct {
	Name    string
	Message string
	Stack   []byte
	Cause   error
}

// NewException creates an exception and captures the current stack.
func NewException(name, message string) *Exception {
	return &Exception{Name: name, Message: message, Stack: debug.Stack()}
}

func (e *Exception) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func (e *Exception) Unwrap() error {
	return e.Cause
}

const panicName = "Panic"

// FromPanic converts a value obtained from recover into an Exception.
// The stack is captured at the call site, so call it from the deferred
// function that recovered.
func FromPanic(v any) *Exception {
	ex := &Exception{Name: panicName, Stack: debug.Stack()}
	switch p := v.(type) {
	case error:
		ex.Message = p.Error()
		ex.Cause = p
	case string:
		ex.Message = p
	default:
		ex.Message = fmt.Sprint(p)
	}
	return ex
}

// CodeOf returns the code of the first structured error in err's chain.
func CodeOf(err error) (Code, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	if ge := FromGRPC(err); ge != nil {
		return ge.Code, true
	}
	return "", false
}

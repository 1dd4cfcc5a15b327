package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/resilience/internal/core/failure"
)

// Server error prefixes that mean "try again later".
var transientPrefixes = []string{"LOADING", "TRYAGAIN", "BUSY", "MASTERDOWN", "CLUSTERDOWN", "OOM"}

// TranslateError maps go-redis errors onto structured failures. Context
// errors pass through so callers can still tell cancellation apart.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var fe *failure.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, redis.Nil):
		return failure.Wrap(failure.CodeNotFound, "key not found", err)
	case errors.Is(err, redis.ErrClosed):
		return failure.Wrap(failure.CodeInternal, "redis client closed", err)
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		prefix, _, _ := strings.Cut(msg, " ")
		switch {
		case hasAnyPrefix(msg, transientPrefixes):
			return failure.Wrap(failure.CodeUnavailable, msg, err).WithDetail("redis_error", prefix)
		case prefix == "NOAUTH" || prefix == "WRONGPASS":
			return failure.Wrap(failure.CodeUnauthorized, msg, err).WithDetail("redis_error", prefix)
		case prefix == "NOPERM":
			return failure.Wrap(failure.CodeForbidden, msg, err).WithDetail("redis_error", prefix)
		default:
			return failure.Wrap(failure.CodeBadRequest, msg, err).WithDetail("redis_error", prefix)
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return failure.Wrap(failure.CodeUnavailable, "redis unreachable", err)
	}

	return failure.Wrap(failure.CodeExternalService, "redis error", err)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

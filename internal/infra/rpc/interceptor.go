// Package rpc retries outbound calls to remote collaborators. gRPC calls go
// through a unary interceptor; HTTP calls through HTTPClient. Both surface
// failures as classifiable errors.
package rpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/vietddude/resilience/internal/core/metrics"
	"github.com/vietddude/resilience/internal/core/retry"
)

// UnaryClientInterceptor retries unary calls under p. Status errors are
// returned unchanged; the failure classifier reads their code.
func UnaryClientInterceptor(ex *retry.Executor, p retry.Policy) grpc.UnaryClientInterceptor {
	if ex == nil {
		ex = retry.NewExecutor()
	}
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		pol := p
		pol.Name = operationName(method)
		return ex.Run(ctx, pol, func(ctx context.Context) error {
			err := invoker(ctx, method, req, reply, cc, opts...)
			metrics.RPCCalls.WithLabelValues(method, status.Code(err).String()).Inc()
			return err
		})
	}
}

// operationName turns "/pkg.Service/Method" into "pkg.Service.Method".
func operationName(method string) string {
	return strings.ReplaceAll(strings.TrimPrefix(method, "/"), "/", ".")
}

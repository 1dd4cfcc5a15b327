package failure

import (
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = map[codes.Code]Code{
	codes.InvalidArgument:    CodeValidation,
	codes.OutOfRange:         CodeValidation,
	codes.FailedPrecondition: CodeBadRequest,
	codes.Unauthenticated:    CodeUnauthorized,
	codes.PermissionDenied:   CodeForbidden,
	codes.NotFound:           CodeNotFound,
	codes.AlreadyExists:      CodeConflict,
	codes.Aborted:            CodeConflict,
	codes.ResourceExhausted:  CodeRateLimited,
	codes.Unavailable:        CodeUnavailable,
	codes.DeadlineExceeded:   CodeUnavailable,
}

// GRPCDomain is the ErrorInfo domain set by (*Error).GRPCStatus.
const GRPCDomain = "resilience"

var statusCodes = map[Code]codes.Code{
	CodeValidation:      codes.InvalidArgument,
	CodeBadRequest:      codes.FailedPrecondition,
	CodeUnauthorized:    codes.Unauthenticated,
	CodeTokenExpired:    codes.Unauthenticated,
	CodeForbidden:       codes.PermissionDenied,
	CodeNotFound:        codes.NotFound,
	CodeConflict:        codes.Aborted,
	CodeRateLimited:     codes.ResourceExhausted,
	CodeUnavailable:     codes.Unavailable,
	CodeExternalService: codes.Unavailable,
	CodeDatabase:        codes.Internal,
	CodeInternal:        codes.Internal,
}

// GRPCStatus lets gRPC servers return *Error directly. The code travels as
// the ErrorInfo reason so FromGRPC restores it exactly on the client.
func (e *Error) GRPCStatus() *status.Status {
	c, ok := statusCodes[e.Code]
	if !ok {
		c = codes.Unknown
	}
	st := status.New(c, e.Error())

	md := make(map[string]string, len(e.Details))
	for k, v := range e.Details {
		if k == "grpc_code" {
			continue
		}
		md[k] = fmt.Sprint(v)
	}
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   GRPCDomain,
		Metadata: md,
	})
	if err != nil {
		return st
	}
	return withInfo
}

// FromGRPC converts a gRPC status error into a structured error. It returns
// nil when err carries no status or the status is OK.
//
// An ErrorInfo detail whose Reason is a known Code takes precedence over the
// status code mapping.
func FromGRPC(err error) *Error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return nil
	}

	code, mapped := grpcCodes[st.Code()]
	if !mapped {
		code = CodeInternal
	}
	details := map[string]any{"grpc_code": st.Code().String()}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok {
			continue
		}
		if info.GetDomain() != "" {
			details["domain"] = info.GetDomain()
		}
		if reason := Code(info.GetReason()); reason.Known() {
			code = reason
		}
		for k, v := range info.GetMetadata() {
			details[k] = v
		}
		break
	}

	return &Error{
		Code:    code,
		Message: st.Message(),
		Details: details,
		Cause:   err,
	}
}

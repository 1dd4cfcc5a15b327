package failure

import "net/http"

// Code identifies a structured application error.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeTokenExpired    Code = "TOKEN_EXPIRED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeRateLimited     Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable     Code = "SERVICE_UNAVAILABLE"
	CodeExternalService Code = "EXTERNAL_SERVICE_ERROR"
	CodeDatabase        Code = "DATABASE_ERROR"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// codeTable is the process-wide classification table for structured errors.
// It is never written after package initialization.
var codeTable = map[Code]Classification{
	CodeValidation:      {Operational: true, Retryable: false, Severity: SeverityLow, Category: CategoryUser},
	CodeBadRequest:      {Operational: true, Retryable: false, Severity: SeverityLow, Category: CategoryUser},
	CodeUnauthorized:    {Operational: true, Retryable: false, Severity: SeverityMedium, Category: CategoryUser},
	CodeTokenExpired:    {Operational: true, Retryable: false, Severity: SeverityMedium, Category: CategoryUser},
	CodeForbidden:       {Operational: true, Retryable: false, Severity: SeverityMedium, Category: CategoryBusiness},
	CodeNotFound:        {Operational: true, Retryable: false, Severity: SeverityLow, Category: CategoryUser},
	CodeConflict:        {Operational: true, Retryable: false, Severity: SeverityMedium, Category: CategoryBusiness},
	CodeRateLimited:     {Operational: true, Retryable: true, Severity: SeverityMedium, Category: CategorySystem},
	CodeUnavailable:     {Operational: true, Retryable: true, Severity: SeverityHigh, Category: CategoryNetwork},
	CodeExternalService: {Operational: true, Retryable: true, Severity: SeverityHigh, Category: CategoryNetwork},
	CodeDatabase:        {Operational: true, Retryable: true, Severity: SeverityHigh, Category: CategorySystem},
	CodeInternal:        Default,
}

var httpStatus = map[Code]int{
	CodeValidation:      http.StatusUnprocessableEntity,
	CodeBadRequest:      http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeTokenExpired:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeRateLimited:     http.StatusTooManyRequests,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeExternalService: http.StatusBadGateway,
	CodeDatabase:        http.StatusInternalServerError,
	CodeInternal:        http.StatusInternalServerError,
}

// Known reports whether c has an entry in the classification table.
func (c Code) Known() bool {
	_, ok := codeTable[c]
	return ok
}

// HTTPStatus returns the response status a collaborator should use for c.
// Unknown codes map to 500.
func (c Code) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// FromHTTPStatus builds the structured error matching an upstream HTTP status.
func FromHTTPStatus(status int, message string) *Error {
	var code Code
	switch {
	case status == http.StatusBadRequest:
		code = CodeBadRequest
	case status == http.StatusUnauthorized:
		code = CodeUnauthorized
	case status == http.StatusForbidden:
		code = CodeForbidden
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusConflict:
		code = CodeConflict
	case status == http.StatusUnprocessableEntity:
		code = CodeValidation
	case status == http.StatusTooManyRequests:
		code = CodeRateLimited
	case status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		code = CodeUnavailable
	case status >= 500:
		code = CodeInternal
	case status >= 400:
		code = CodeBadRequest
	default:
		code = CodeInternal
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Code:    code,
		Message: message,
		Details: map[string]any{"http_status": status},
	}
}

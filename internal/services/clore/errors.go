package clore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed upstream call
type ErrorKind string

const (
	KindTransport       ErrorKind = "transport"
	KindDatabase        ErrorKind = "database"
	KindInvalidInput    ErrorKind = "invalid_input"
	KindInvalidToken    ErrorKind = "invalid_token"
	KindInvalidEndpoint ErrorKind = "invalid_endpoint"
	KindRateLimited     ErrorKind = "rate_limited"
	KindDomain          ErrorKind = "domain"
)

// Status codes embedded in every Clore API response body
var errorCodes = map[int]string{
	0: "NORMAL",
	1: "DATABASE ERROR",
	2: "INVALID INPUT DATA",
	3: "INVALID API TOKEN",
	4: "INVALID ENDPOINT",
	5: "EXCEEDED 1 request/second limit",
	6: "Error specified in error field",
}

func kindForCode(code int) ErrorKind {
	switch code {
	case 1:
		return KindDatabase
	case 2:
		return KindInvalidInput
	case 3:
		return KindInvalidToken
	case 4:
		return KindInvalidEndpoint
	case 5:
		return KindRateLimited
	default:
		return KindDomain
	}
}

// APIError is raised for any non-success status code, transport failure
// or decode failure. Code is -1 when no upstream code was available.
type APIError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Raw     json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clore api error [%d] %s: %s", e.Code, e.Kind, e.Message)
}

func transportError(err error) *APIError {
	return &APIError{Kind: KindTransport, Code: -1, Message: err.Error()}
}

// IsRetryable reports whether the failure may succeed at the next scheduled
// poll. Retries are never performed inline; this only informs callers.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindTransport || apiErr.Kind == KindRateLimited
	}
	return false
}

// ValidationError rejects malformed order parameters before any upstream call
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

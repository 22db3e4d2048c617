package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindValidationFailed Kind = iota + 1
	KindInvalidIdentifier
	KindServiceUnavailable
	KindTimeout
	KindUpstreamRejected
	KindProcessingFailed
	KindNotFound
)

var kindCodes = map[Kind]string{
	KindValidationFailed:   "VALIDATION_FAILED",
	KindInvalidIdentifier:  "INVALID_IDENTIFIER",
	KindServiceUnavailable: "SERVICE_UNAVAILABLE",
	KindTimeout:            "TIMEOUT",
	KindUpstreamRejected:   "UPSTREAM_REJECTED",
	KindProcessingFailed:   "PROCESSING_FAILED",
	KindNotFound:           "NOT_FOUND",
}

// String returns the machine-readable code for k.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return "UNKNOWN"
}

// Error is the only error type the gateway returns to callers.
type Error struct {
	Kind    Kind
	Message string
	// Detail is the upstream's own explanation as raw JSON, when it gave one.
	Detail json.RawMessage
	// Status is the upstream HTTP status for KindUpstreamRejected.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error to the status code the API answers with.
// Upstream client errors pass through, except credential failures, which are
// the gateway's problem rather than the caller's.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidationFailed, KindInvalidIdentifier:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamRejected:
		switch e.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusProxyAuthRequired:
			return http.StatusBadGateway
		}
		if e.Status >= 400 && e.Status < 500 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind Kind) bool {
	gwErr, ok := AsError(err)
	return ok && gwErr.Kind == kind
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidationFailed, Message: fmt.Sprintf(format, args...)}
}

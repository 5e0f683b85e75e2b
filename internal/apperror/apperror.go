package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal    Kind = iota // Unclassified
	KindUnavailable             // Breaker open, transport error or 503
	KindRejected                // Downstream refused the request
	KindNotFound                // Referenced entity does not exist
	KindMalformed               // Success status with an unusable body
	KindValidation              // Gateway input failed validation
	KindUnauthorized            // Missing or invalid identity
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a classified failure. Dependency is empty for failures raised
// by the gateway itself.
type Error struct {
	Kind       Kind
	Dependency string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}

	if e.Dependency != "" {
		msg = e.Dependency + ": " + msg
	}

	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}

	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Unavailable(dependency string, err error) *Error {
	return &Error{
		Kind:       KindUnavailable,
		Dependency: dependency,
		Message:    "service unavailable",
		Err:        err,
	}
}

func Rejected(dependency string, statusCode int, message string) *Error {
	return &Error{
		Kind:       KindRejected,
		Dependency: dependency,
		StatusCode: statusCode,
		Message:    message,
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: message}
}

func Malformed(dependency string, err error) *Error {
	return &Error{
		Kind:       KindMalformed,
		Dependency: dependency,
		Message:    "invalid response",
		Err:        err,
	}
}

func Validation(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// FromStatus classifies a non-success downstream response.
// A 503 is an outage signal; 404 maps to NotFound; everything else is a
// rejection that keeps the downstream status.
func FromStatus(dependency string, statusCode int, message string) *Error {
	switch statusCode {
	case http.StatusServiceUnavailable:
		return &Error{
			Kind:       KindUnavailable,
			Dependency: dependency,
			StatusCode: statusCode,
			Message:    "service unavailable",
		}
	case http.StatusNotFound:
		return &Error{
			Kind:       KindNotFound,
			Dependency: dependency,
			StatusCode: statusCode,
			Message:    message,
		}
	default:
		return Rejected(dependency, statusCode, message)
	}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode returns the downstream status carried by err, or 0.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	return 0
}

// IsOutage reports whether err says something about the health of the
// dependency rather than about the request. 5xx responses count as outages.
func IsOutage(err error) bool {
	if err == nil {
		return false
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		return true
	}

	switch appErr.Kind {
	case KindUnavailable, KindInternal:
		return true
	case KindRejected:
		return appErr.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// IsRetryable reports whether replaying the same request later can
// succeed. Timeouts and throttling are retryable rejections.
func IsRetryable(err error) bool {
	if IsOutage(err) {
		return true
	}

	switch StatusCode(err) {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

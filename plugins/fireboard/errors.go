package fireboard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoToken is returned by the session before a successful login.
var ErrNoToken = errors.New("fireboard session has no token")

// AuthenticationError is a rejected login.
type AuthenticationError struct {
	Status int
	Body   string
}

func (e *AuthenticationError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fireboard login failed: status %d", e.Status)
	}
	return fmt.Sprintf("fireboard login failed: status %d: %s", e.Status, e.Body)
}

// FetchError is a non-200 response to a required read.
type FetchError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fireboard fetch %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("fireboard fetch %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// TimeoutError means a refresh cycle ran past its overall budget.
type TimeoutError struct {
	Budget time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fireboard refresh exceeded %s: %v", e.Budget, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a write before any request is made.
type ValidationError struct {
	Field string
	Value int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fireboard %s must be between 0 and 100, got %d", e.Field, e.Value)
}

// WriteError is a non-200 response to a write.
type WriteError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *WriteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fireboard write %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("fireboard write %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// RefreshError is what the scheduler sees for any failed cycle. Use
// errors.As to reach the cause.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("fireboard refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// failureKind labels an error for metrics and health messages.
func failureKind(err error) string {
	var (
		authErr     *AuthenticationError
		fetchErr    *FetchError
		timeoutErr  *TimeoutError
		validateErr *ValidationError
		writeErr    *WriteError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &validateErr):
		return "validation"
	case errors.As(err, &writeErr):
		return "write"
	case err == nil:
		return ""
	default:
		return "transport"
	}
}

func trimBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		return text[:256]
	}
	return text
}

package session

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn indicates an operation that requires credentials was called
// without an active session or stored token.
var ErrNotLoggedIn = errors.New("session: not logged in")

// ValidationError indicates malformed login input (bad server URL, empty
// email or password). Surfaced synchronously, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError indicates the remote server rejected the credentials or the
// session expired. The session is cleared, forcing re-login.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// NetworkError indicates the remote server could not be reached. Retried by
// the scheduler on its normal interval, never in a tight loop.
type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// IsValidation returns true when err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

// IsAuth returns true when err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var target AuthError
	return errors.As(err, &target)
}

// IsNetwork returns true when err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var target NetworkError
	return errors.As(err, &target)
}

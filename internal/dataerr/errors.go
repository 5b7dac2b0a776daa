// Package dataerr defines the single error type returned by session data sources.
package dataerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a data access error. StatusCode is 0 when no status applies
// (transport failures, startup timeouts, missing database file).
type Error struct {
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Cause
}

// HasStatus reports whether a status code is attached
func (e *Error) HasStatus() bool {
	return e.StatusCode != 0
}

// New creates an error without a status code
func New(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error without a status code that wraps cause
func Wrap(cause error, format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithStatus creates an error carrying an HTTP-like status code
func WithStatus(status int, format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), StatusCode: status}
}

// NotFound creates a 404 error
func NotFound(format string, args ...interface{}) *Error {
	return WithStatus(http.StatusNotFound, format, args...)
}

// As extracts the *Error from an error chain
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// StatusCode returns the status code carried by err, if any
func StatusCode(err error) (int, bool) {
	de, ok := As(err)
	if !ok || !de.HasStatus() {
		return 0, false
	}
	return de.StatusCode, true
}

// IsNotFound reports whether err carries a 404 status
func IsNotFound(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusNotFound
}

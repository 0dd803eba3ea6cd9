package backend

import (
	"fmt"

	"github.com/go-playground/errors/v5"
)

// AuthError reports a failure from the backend auth API: bad credentials,
// duplicate accounts, or an unreachable auth endpoint. Auth failures are
// surfaced to the caller for user-facing messaging.
type AuthError struct {
	// Status is the HTTP status reported by the backend, 0 when unreachable.
	Status  int
	Message string
	err     error
}

// NewAuthError returns an AuthError with the given backend status and message.
func NewAuthError(status int, message string) error {
	return &AuthError{Status: status, Message: message}
}

// NewAuthErrorWithError wraps err as an AuthError.
func NewAuthErrorWithError(err error, message string) error {
	return &AuthError{Message: message, err: err}
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
	}

	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// IsAuthError reports whether any error in err's chain is an AuthError.
func IsAuthError(err error) bool {
	var target *AuthError

	return errors.As(err, &target)
}

// StorageError reports a failure reading or writing backend records. Role
// resolution treats these as best-effort enrichment failures, not a gate
// to entry.
type StorageError struct {
	Op  string
	err error
}

// NewStorageError wraps err as a StorageError for the given operation.
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, err: err}
}

func (e *StorageError) Error() string {
	if e.err != nil {
		return "storage: " + e.Op + ": " + e.err.Error()
	}

	return "storage: " + e.Op
}

func (e *StorageError) Unwrap() error {
	return e.err
}

// IsStorageError reports whether any error in err's chain is a StorageError.
func IsStorageError(err error) bool {
	var target *StorageError

	return errors.As(err, &target)
}

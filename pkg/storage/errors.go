package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for categorized failure conditions. Callers match with
// errors.Is; backends wrap them in *Error to add operation context.
var (
	// ErrNotFound indicates the referenced file or folder does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrVersionNotFound indicates the referenced version does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrNotSupported indicates the backend does not implement the
	// requested capability.
	ErrNotSupported = errors.New("operation not supported by storage backend")

	// ErrFolderNotEmpty indicates a folder delete was refused because the
	// folder still has children.
	ErrFolderNotEmpty = errors.New("folder not empty")

	// ErrLocked indicates the file is locked by another session.
	ErrLocked = errors.New("file is locked")

	// ErrQuotaReached indicates the account's storage quota is exhausted.
	ErrQuotaReached = errors.New("storage quota reached")

	// ErrInvalidID indicates a malformed backend identifier.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrAccountNotFound indicates no configured account matches the
	// composite identifier.
	ErrAccountNotFound = errors.New("storage account not found")

	// ErrPermissionDenied indicates the acting entity lacks sufficient
	// rights on the object.
	ErrPermissionDenied = errors.New("permission denied")
)

// Error wraps a storage failure with the operation that produced it and
// an optional human-readable message.
type Error struct {
	Op  string // Operation name, e.g. "SaveDocument"
	Err error  // Underlying or sentinel error
	Msg string // Optional context message
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As matching.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a storage error for an operation.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// NewErrorf creates a storage error with a formatted context message.
func NewErrorf(op string, err error, format string, args ...any) *Error {
	return &Error{Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err indicates a missing file, folder or
// version.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionNotFound)
}

// IsNotSupported reports whether err indicates an unsupported capability.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

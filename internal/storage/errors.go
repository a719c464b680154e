package storage

import "errors"

// Common storage errors
var (
	// ErrNotFound indicates that no row exists under the requested key
	ErrNotFound = errors.New("row not found")

	// ErrClosed indicates that storage is closed
	ErrClosed = errors.New("storage is closed")

	// ErrUnknownTable indicates an operation on a table the storage does not provide
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidOp indicates a malformed batch operation
	ErrInvalidOp = errors.New("invalid batch operation")
)

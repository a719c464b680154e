package models

import "errors"

// Domain errors shared by every medpass component.
// Storage-level errors are translated into these at component boundaries.
var (
	// ErrNotFound indicates an operation on an absent, tombstoned or wrongly-typed record id
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate patient identity
	ErrAlreadyExists = errors.New("already exists")

	// ErrIntegrityMismatch indicates a transferred record whose checksum does not match its payload
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrStorageFailure indicates that the storage collaborator failed; fatal for the operation
	ErrStorageFailure = errors.New("storage failure")

	// ErrSessionTimeout indicates that a sync session stayed idle longer than allowed
	ErrSessionTimeout = errors.New("sync session timeout")

	// ErrSessionAborted indicates that a sync session was cancelled or lost its transport
	ErrSessionAborted = errors.New("sync session aborted")

	// ErrSessionConflict indicates that another session holds a lock on overlapping records
	ErrSessionConflict = errors.New("sync session conflict")

	// ErrInvalidRecord indicates a record that violates the data model (bad payload, id mismatch)
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidPIN indicates a PIN that does not match the stored hash
	ErrInvalidPIN = errors.New("invalid PIN")

	// ErrInvalidInput indicates user input rejected by validation (PIN format, empty name)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoIdentity indicates that onboarding has not been completed yet
	ErrNoIdentity = errors.New("patient identity not found")
)

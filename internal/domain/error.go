package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrIllegalTransition  = errors.New("illegal job status transition")
	ErrUnknownResource    = errors.New("unknown resource key")
	ErrUnknownFormat      = errors.New("unknown file format")
	ErrTooManyRows        = errors.New("dataset exceeds maximum allowed rows")
	ErrInvalidRows        = errors.New("parsed dataset contains invalid rows")
	ErrAlreadyClaimed     = errors.New("job already claimed by another worker")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrNoArtifact         = errors.New("job has no artifact file")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

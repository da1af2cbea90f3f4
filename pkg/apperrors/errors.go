// Package apperrors defines the sentinel errors shared across service and
// handler layers. Handlers map these to HTTP status codes.
package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrVersionConflict   = errors.New("table version conflict")
	ErrExtractionRunning = errors.New("extraction already running for this datasource")
	ErrCrossTableBatch   = errors.New("comment batch spans multiple tables")
	ErrUnsupportedType   = errors.New("unsupported datasource type")
	ErrValidation        = errors.New("validation failed")
)

package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRunInProgress     = errors.New("ingestion run already in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrFallbackDisabled  = errors.New("fallback extractor disabled")
	ErrInvalidInput      = errors.New("invalid input")
)

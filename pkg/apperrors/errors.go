package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrStaleVersion      = errors.New("configuration version is stale")
	ErrInvalidThresholds = errors.New("quick-review threshold must be below auto-approve threshold")
	ErrInvalidRule       = errors.New("invalid mapping rule")
	ErrGlobalDelete      = errors.New("global configuration cannot be deleted")
)

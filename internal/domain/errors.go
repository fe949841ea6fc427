package domain

import "errors"

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrNotAuthenticated is returned when no valid session exists
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBackendUnavailable is returned when a persistence backend cannot be reached
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInvalidCredentials is returned when neither the primary backend nor the demo directory accept a login
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRoleNotAvailable is returned when a role outside the user's role set is requested
	ErrRoleNotAvailable = errors.New("role not available")
	// ErrValidation marks field-level validation failures
	ErrValidation = errors.New("validation failed")
	// ErrUniquenessConflict marks record-level uniqueness conflicts
	ErrUniquenessConflict = errors.New("uniqueness conflict")
	// ErrForbidden is returned when the active role may not perform an action
	ErrForbidden = errors.New("forbidden")
)

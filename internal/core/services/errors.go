package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed request parameter, rejected before any fetch.
	ErrValidation = errors.New("validation failed")
	// ErrAccessDenied indicates the caller may not read the package sources.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound indicates an unknown project, package, repository or architecture.
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable indicates a transport failure or timeout talking to the backend.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// AccessDeniedError carries the display name of the protected package.
type AccessDeniedError struct {
	Name string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("no source access to %q", e.Name)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

package authapi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized covers rejected credentials and rejected tokens.
	ErrUnauthorized = errors.New("authapi: unauthorized")
	// ErrForbidden means the server understood the identity but refused the
	// operation.
	ErrForbidden = errors.New("authapi: forbidden")
	// ErrNotFound is returned for unknown role or user identifiers.
	ErrNotFound = errors.New("authapi: not found")
)

// APIError preserves the server's detail message for user-visible display.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authapi: server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("authapi: %s (status %d)", e.Detail, e.StatusCode)
}

// Unwrap maps well-known status codes onto sentinel errors so call sites can
// branch with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	default:
		return nil
	}
}

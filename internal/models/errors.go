package models

import "errors"

var (
	// ErrInvalidCredential rejects a connection or request; retry needs a new credential.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotFound is returned when a chat or message key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller is not a party to the chat.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is returned for empty or oversized content and malformed input.
	ErrValidation = errors.New("validation failed")
)

const (
	ReasonUnauthorized = "unauthorized"
	ReasonNotFound     = "not_found"
	ReasonForbidden    = "forbidden"
	ReasonValidation   = "validation"
	ReasonStorage      = "storage_error"
	ReasonRateLimited  = "rate_limited"
	ReasonBadRequest   = "bad_request"
)

// ErrorReason maps an error to the reason sent to clients.
// Anything outside the taxonomy counts as a storage failure.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return ReasonUnauthorized
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, ErrValidation):
		return ReasonValidation
	}
	return ReasonStorage
}

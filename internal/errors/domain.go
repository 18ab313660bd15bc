package errors

import (
	"errors"

	"github.com/gcswan/ding/internal/domain"
)

// FromDomain translates a domain sentinel error into a structured error
// carrying the given message. Unknown errors become internal errors.
func FromDomain(err error, message string) *Error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return NotFoundError(message)
	case errors.Is(err, domain.ErrForbidden):
		return ForbiddenError(message)
	case errors.Is(err, domain.ErrInvalidState):
		return ConflictError(message)
	case errors.Is(err, domain.ErrAlreadyExists):
		return ConflictError(message)
	default:
		return InternalError(message, err)
	}
}

package incident

import "errors"

var (
	// ErrNotFound is returned when the referenced incident does not exist.
	ErrNotFound = errors.New("incident not found")

	// ErrInvalid is returned for input that fails validation.
	ErrInvalid = errors.New("invalid incident input")
)

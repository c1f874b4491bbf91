package override

import "errors"

// Domain errors for the override package.
var (
	// ErrOverrideNotFound is returned when an override ID does not exist.
	ErrOverrideNotFound = errors.New("override: not found")

	// ErrInvalidType is returned when an override type is not recognised.
	ErrInvalidType = errors.New("override: invalid type")

	// ErrMissingUser is returned when a request lacks the acting user ID.
	ErrMissingUser = errors.New("override: user id required")

	// ErrUnauthorized is returned when a user attempts to revoke an
	// override they did not create and they are not an admin.
	ErrUnauthorized = errors.New("override: not authorised to revoke")
)

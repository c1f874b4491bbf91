package resilience

import "errors"

var (
	// ErrControlOverridden is returned when a command is refused because
	// an active manual override blocks device control.
	ErrControlOverridden = errors.New("resilience: device control blocked by active override")

	// ErrNotCached is returned when a read fails and no cached value is
	// available to fall back on.
	ErrNotCached = errors.New("resilience: no cached value available")
)

package device

import "errors"

// Sentinel errors; callers branch with errors.Is.
var (
	ErrDeviceNotFound    = errors.New("device: not found")
	ErrInvalidDeviceType = errors.New("device: invalid type")
	ErrInvalidAction     = errors.New("device: invalid action")
)

package mqttdev

import "errors"

// Domain errors for the MQTT device bridge.
var (
	// ErrTimeout is returned when a device or the fleet controller does
	// not respond within the request timeout.
	ErrTimeout = errors.New("mqttdev: request timed out")

	// ErrRemoteFault is returned when the fleet controller reports an
	// error in a response payload.
	ErrRemoteFault = errors.New("mqttdev: remote error")

	// ErrCommandRejected is returned when a device acknowledges a command
	// with a failure status.
	ErrCommandRejected = errors.New("mqttdev: command rejected by device")

	// ErrBadResponse is returned when a response payload cannot be decoded.
	ErrBadResponse = errors.New("mqttdev: malformed response payload")

	// ErrNotStarted is returned when an operation requires the bridge to
	// be started but Start has not been called.
	ErrNotStarted = errors.New("mqttdev: bridge not started")
)

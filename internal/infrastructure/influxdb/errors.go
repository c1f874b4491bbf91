package influxdb

import "errors"

// Sentinel errors; callers branch with errors.Is. Write failures do
// not appear here: writes are batched and non-blocking, their errors
// arrive through the SetOnError callback.
var (
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")
)

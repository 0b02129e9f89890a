package influxdb

import "errors"

var (
	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrConnectionFailed is returned by Connect when the server cannot be
	// reached or reports itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps batch failures passed to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrNoFields is returned for points without fields, which the line
	// protocol cannot express.
	ErrNoFields = errors.New("influxdb: point has no fields")

	errServerUnhealthy = errors.New("server not healthy")
)

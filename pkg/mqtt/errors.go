package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthentication is returned when the broker rejects the credentials.
	ErrAuthentication = errors.New("mqtt: authentication failed")

	// ErrNetwork is returned when the broker cannot be reached.
	ErrNetwork = errors.New("mqtt: network error")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrDisconnected is returned to operations cut short by Disconnect.
	ErrDisconnected = errors.New("mqtt: client disconnected")

	// ErrConnectInProgress is returned by Connect while a connect or
	// reconnect is already running.
	ErrConnectInProgress = errors.New("mqtt: connect already in progress")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidOptions is returned when session options are incomplete.
	ErrInvalidOptions = errors.New("mqtt: invalid options")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)

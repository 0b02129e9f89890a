package mqtt

import "fmt"

// QoS is the MQTT delivery guarantee level.
type QoS byte

// QoS levels.
const (
	// AtMostOnce is fire and forget. Success means the local transport
	// accepted the message, never that it was delivered.
	AtMostOnce QoS = 0

	// AtLeastOnce waits for the broker's PUBACK; duplicates are possible.
	AtLeastOnce QoS = 1

	// ExactlyOnce completes the four-way handshake.
	ExactlyOnce QoS = 2
)

// maxQoS is the maximum QoS level supported.
const maxQoS = ExactlyOnce

// Valid reports whether q is 0, 1 or 2.
func (q QoS) Valid() bool {
	return q <= maxQoS
}

// ParseQoS converts an integer level, typically from config or flags.
func ParseQoS(n int) (QoS, error) {
	if n < 0 || n > int(maxQoS) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, n)
	}
	return QoS(n), nil
}

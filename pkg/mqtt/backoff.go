package mqtt

import (
	"math/rand/v2"
	"time"
)

// Reconnect backoff defaults.
const (
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 60 * time.Second
	defaultJitter       = 0.2
)

// Backoff computes bounded exponential reconnect delays with jitter.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration

	// Max caps every delay.
	Max time.Duration

	// Jitter is the fraction (0..1) of each delay randomised downward to
	// spread reconnect storms across clients.
	Jitter float64
}

// DefaultBackoff returns 1s doubling to 60s with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Initial: defaultInitialDelay, Max: defaultMaxDelay, Jitter: defaultJitter}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	initial, limit := b.Initial, b.Max
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	if limit < initial {
		limit = initial
	}

	d := initial
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}

	if b.Jitter > 0 {
		j := b.Jitter
		if j > 1 {
			j = 1
		}
		d -= time.Duration(rand.Float64() * j * float64(d))
	}
	return d
}

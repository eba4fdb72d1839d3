package client

import (
	"math/rand/v2"
	"time"
)

// Backoff maps a 0-based retry attempt to the pause before it.
type Backoff func(attempt int) time.Duration

// Exponential doubles from base until it reaches limit. Each pause is
// spread by up to jitter (a fraction of the pause) in either direction.
func Exponential(base, limit time.Duration, jitter float64) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt && d < limit; i++ {
			d *= 2
		}
		d = min(d, limit)
		if jitter <= 0 {
			return d
		}
		spread := time.Duration(float64(d) * jitter * (2*rand.Float64() - 1))
		return max(d+spread, 0)
	}
}

// Constant always waits d.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// DefaultBackoff starts at 100ms and caps at 5s with 20% jitter.
var DefaultBackoff = Exponential(100*time.Millisecond, 5*time.Second, 0.2)

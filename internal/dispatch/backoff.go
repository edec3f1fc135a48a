package dispatch

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before a retry: Base·Multiplier^(attempt-1),
// capped at Max, then spread by ±Jitter as a fraction of the delay.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     float64
}

// Delay returns the wait before the retry that follows attempt. Attempts
// below 1 are treated as 1.
func (b Backoff) Delay(attempt int) time.Duration {
	attempt = max(attempt, 1)

	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(max(d, 0))
}

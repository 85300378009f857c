package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the wait before retry number attempt (0-based).
type Backoff interface {
	Next(attempt int) time.Duration
}

// Constant waits the same delay between all attempts.
type Constant time.Duration

func (c Constant) Next(int) time.Duration { return time.Duration(c) }

// ExpoJitter doubles Base per attempt up to Max and spreads each wait by
// ±Jitter (0.2 means ±20%).
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	attempt = max(attempt, 0)
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d *= 1 + b.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

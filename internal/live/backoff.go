package live

import (
	"math"
	"math/rand"
	"time"
)

// reconnector computes exponential backoff delays with jitter.
type reconnector struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	attempt   int
}

func newReconnector(base, ceiling time.Duration) *reconnector {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if ceiling < base {
		ceiling = base
	}
	return &reconnector{baseDelay: base, maxDelay: ceiling}
}

func (r *reconnector) nextDelay() time.Duration {
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}

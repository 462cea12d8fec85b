package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pause reasons reported to the Pacer and the Observer.
const (
	ReasonEmptyPool = "empty_pool"
	ReasonCooldown  = "cooldown"
)

// Pacer suspends the calling partition without blocking the others.
type Pacer interface {
	Pause(ctx context.Context, reason string, d time.Duration) error
}

// Governor is the timer-based Pacer. It gives no bound on total wait
// time; it only guarantees the caller retries after the delay.
type Governor struct{}

// Pause waits for d or until ctx is done, whichever comes first.
func (Governor) Pause(ctx context.Context, reason string, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter caps the global request rate across all partitions. A nil
// Limiter never waits.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter returns nil when rps is not positive.
func NewLimiter(rps float64) *Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.rl.Wait(ctx)
}

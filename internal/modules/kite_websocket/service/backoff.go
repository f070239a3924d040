package service

import (
	"context"
	"math/rand"
	"time"
)

// Backoff: экспоненциальная задержка переподключения с джиттером.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Min:    5 * time.Second,
		Max:    time.Minute,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next: задержка для попытки attempt (с 1).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	minWait := b.Min
	if minWait <= 0 {
		minWait = 100 * time.Millisecond
	}
	maxWait := b.Max
	if maxWait < minWait {
		maxWait = minWait
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := minWait
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > maxWait {
			wait = maxWait
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := min(b.Jitter, 1)
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

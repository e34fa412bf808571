// Package backoff implements exponential backoff with optional jitter for
// the bounded retry loops around transient backend errors.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes per-attempt delays. Delays grow exponentially from Base
// up to Max, optionally spread by Jitter (0..1 fraction of the delay).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	mu   sync.Mutex
	rand *rand.Rand
}

// New returns a Backoff initialized with the supplied parameters.
func New(base, max time.Duration, jitter float64) *Backoff {
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	if max <= 0 {
		max = 500 * time.Millisecond
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{
		Base:   base,
		Max:    max,
		Jitter: jitter,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ForAttempt returns the delay for the given attempt (0-indexed).
func (b *Backoff) ForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return b.addJitter(b.Base)
	}
	if attempt > 62 {
		attempt = 62
	}
	exp := float64(uint64(1) << uint(attempt))
	delay := time.Duration(float64(b.Base) * exp)
	if delay <= 0 || delay > b.Max {
		delay = b.Max
	}
	return b.addJitter(delay)
}

// Sleep waits the delay for attempt or returns early with ctx.Err().
func (b *Backoff) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.ForAttempt(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backoff) addJitter(delay time.Duration) time.Duration {
	if b.Jitter == 0 || delay <= 0 {
		return delay
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	factor := 1 + (b.rand.Float64()*2-1)*math.Min(b.Jitter, 1)
	if factor < 0 {
		factor = 0
	}
	return time.Duration(float64(delay) * factor)
}

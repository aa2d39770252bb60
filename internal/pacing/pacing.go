// Package pacing holds the context-aware sleep and jitter helpers shared by
// the marketplace crawlers.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rand is a mutex-guarded random source safe for concurrent fetchers.
type Rand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRand seeds a Rand. A zero seed uses the current time.
func NewRand(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{rnd: rand.New(rand.NewSource(seed))}
}

// Between returns a uniformly random duration in [lo, hi).
func (r *Rand) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + time.Duration(r.rnd.Int63n(int64(hi-lo)))
}

// Intn returns a random int in [0, n).
func (r *Rand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

// Pick returns a random element of pool, or "" when it is empty.
func (r *Rand) Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[r.Intn(len(pool))]
}

// Backoff returns base*2^attempt capped at max.
func Backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

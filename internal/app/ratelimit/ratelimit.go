// Package ratelimit guards the auth endpoints against brute-force attempts.
// Limiters count attempts per identifier within a rolling window and are
// reset on success.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is injected wherever attempt counting is needed; callers never
// touch the backing store directly.
type Limiter interface {
	// Allow reports whether another attempt is permitted for key.
	Allow(ctx context.Context, key string) (bool, error)
	// Record counts one attempt against key.
	Record(ctx context.Context, key string) error
	// Reset clears the counter, typically after a successful login.
	Reset(ctx context.Context, key string) error
}

// MemoryLimiter is a mutex-guarded in-process limiter. Stale keys are
// dropped by Sweep, which the owner runs periodically.
type MemoryLimiter struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration

	now func() time.Time
}

func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key)) < l.maxAttempts, nil
}

func (l *MemoryLimiter) Record(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[key] = append(l.prune(key), l.now())
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
	return nil
}

// Sweep removes keys whose attempts have all aged out of the window.
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.attempts {
		if len(l.prune(key)) == 0 {
			delete(l.attempts, key)
		}
	}
}

// StartSweeping runs Sweep on the given interval until ctx is cancelled.
func (l *MemoryLimiter) StartSweeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// prune drops attempts older than the window. Caller must hold l.mu.
func (l *MemoryLimiter) prune(key string) []time.Time {
	cutoff := l.now().Add(-l.window)
	kept := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.attempts[key] = kept
	return kept
}

package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindowGuard tracks attempt timestamps per action type in memory.
// The client engine consults it before issuing a remote call so that a burst
// of toggles or submissions is refused locally instead of wasting round
// trips. It complements, and never replaces, server-side enforcement.
type SlidingWindowGuard struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewSlidingWindowGuard(limit int, window time.Duration) *SlidingWindowGuard {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowGuard{
		limit:    limit,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records an attempt for the action and reports whether it is within
// quota. Attempts older than the window are dropped as a side effect.
func (g *SlidingWindowGuard) Allow(action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-g.window)

	kept := g.attempts[action][:0]
	for _, at := range g.attempts[action] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= g.limit {
		g.attempts[action] = kept
		return false
	}

	g.attempts[action] = append(kept, now)
	return true
}

// Remaining reports how many attempts are left in the current window.
func (g *SlidingWindowGuard) Remaining(action string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.window)
	count := 0
	for _, at := range g.attempts[action] {
		if at.After(cutoff) {
			count++
		}
	}
	if count >= g.limit {
		return 0
	}
	return g.limit - count
}

package guard

import (
	"sync"
	"time"
)

// Capability names the operations with independent rate ceilings.
const (
	CapBind      = "bind"
	CapBroadcast = "broadcast"
	CapProvision = "provision"
)

// Decision is the outcome of a rate-limit check. ResetAt is surfaced to
// the caller as a retry hint when Allowed is false.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count int
	start time.Time
}

// RateLimiter is a fixed-window counter keyed per caller and capability.
// Distinct keys never contend beyond the map lock.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window), now: time.Now}
}

// Admit counts one request for key under the given ceiling and window
// length. A new window resets the count.
func (rl *RateLimiter) Admit(key string, ceiling int, windowLen time.Duration) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= windowLen {
		w = &window{start: now}
		rl.windows[key] = w
	}

	resetAt := w.start.Add(windowLen)
	if w.count >= ceiling {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	return Decision{Allowed: true, Remaining: ceiling - w.count, ResetAt: resetAt}
}

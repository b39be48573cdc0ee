// Package ratelimit throttles credential endpoints per client with a token
// bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket tracks the token state for a single key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter implements a token-bucket rate limiter keyed by client identifier.
// A rate of zero or less disables limiting.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time // injectable clock for testing
}

// New creates a Limiter that allows rate requests per window and key.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// getBucket returns the refilled bucket for key, creating a full one if it
// doesn't exist. Must be called with l.mu held.
func (l *Limiter) getBucket(key string) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastRefill: now}
		l.buckets[key] = b
		return b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * float64(l.rate) / l.window.Seconds()
		if b.tokens > float64(l.rate) {
			b.tokens = float64(l.rate)
		}
		b.lastRefill = now
	}
	return b
}

// Allow reports whether a request from key is permitted and consumes one
// token when it is.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Status returns the current state for key: the bucket size, the whole tokens
// left and the time at which the bucket will be full again.
func (l *Limiter) Status(key string) (limit int, remaining int, resetAt time.Time) {
	if !l.Enabled() {
		return 0, 0, time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	limit = l.rate
	remaining = int(b.tokens)
	if remaining < 0 {
		remaining = 0
	}

	deficit := float64(l.rate) - b.tokens
	if deficit <= 0 {
		resetAt = l.now()
	} else {
		perSecond := float64(l.rate) / l.window.Seconds()
		resetAt = l.now().Add(time.Duration(deficit / perSecond * float64(time.Second)))
	}
	return
}

// Prune drops buckets that have refilled completely. A missing bucket and a
// full one behave the same, so this only reclaims memory.
func (l *Limiter) Prune() int {
	if !l.Enabled() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		elapsed := now.Sub(b.lastRefill).Seconds()
		if b.tokens+elapsed*float64(l.rate)/l.window.Seconds() >= float64(l.rate) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run prunes idle buckets every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

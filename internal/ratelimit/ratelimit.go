// Package ratelimit is a fixed-window counter keyed by caller and endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of one check.
type Decision struct {
	OK        bool
	Remaining int
	ResetAt   time.Time
}

// Store keeps one bucket per key. A bucket resets lazily on the first Take
// after its window has passed.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error)
	Close() error
}

// bucket applies the fixed-window rule to one stored counter. fresh is true
// when the key had no bucket yet.
func bucket(tokens int, resetAt time.Time, fresh bool, limit int, window time.Duration, now time.Time) (int, time.Time, Decision) {
	if fresh || now.After(resetAt) {
		resetAt = now.Add(window)
		tokens = limit - 1
		return tokens, resetAt, Decision{OK: true, Remaining: tokens, ResetAt: resetAt}
	}
	if tokens <= 0 {
		return 0, resetAt, Decision{OK: false, Remaining: 0, ResetAt: resetAt}
	}
	tokens--
	return tokens, resetAt, Decision{OK: true, Remaining: tokens, ResetAt: resetAt}
}

// Limiter guards named endpoints with a shared Store.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func New(store Store, limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, limit: limit, window: window, now: time.Now}
}

// SetClock replaces the time source.
func (l *Limiter) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

func (l *Limiter) Limit() int { return l.limit }

// Key builds the bucket key "<endpoint>:<ip>".
func Key(endpoint, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return strings.TrimSpace(endpoint) + ":" + ip
}

// Allow takes one token for ip on endpoint.
func (l *Limiter) Allow(ctx context.Context, endpoint, ip string) (Decision, error) {
	d, err := l.store.Take(ctx, Key(endpoint, ip), l.limit, l.window, l.now())
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", endpoint, err)
	}
	return d, nil
}

// Close releases the underlying store.
func (l *Limiter) Close() error { return l.store.Close() }

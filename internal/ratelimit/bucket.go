// Package ratelimit implements a per-client token-bucket admission check and
// the HTTP middleware that applies it at the transport boundary.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// bucket holds the token state for one client key. Each bucket carries its
// own mutex so concurrent requests for distinct clients never contend.
type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// Limiter is a token-bucket rate limiter keyed by client identity. Buckets
// are created lazily at full capacity and live for the process lifetime.
type Limiter struct {
	capacity int
	period   time.Duration

	mu      sync.RWMutex
	buckets map[string]*bucket

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a Limiter allowing capacity admissions per period.
func New(capacity int, period time.Duration) *Limiter {
	return &Limiter{
		capacity: capacity,
		period:   period,
		buckets:  make(map[string]*bucket),
		nowFunc:  time.Now,
	}
}

// Capacity returns the bucket capacity (the advertised limit).
func (l *Limiter) Capacity() int { return l.capacity }

// Period returns the refill window.
func (l *Limiter) Period() time.Duration { return l.period }

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{tokens: l.capacity, lastRefill: l.nowFunc()}
	l.buckets[key] = b
	return b
}

// Admit consumes one token for the client if available. Refill is
// proportional to elapsed time, floored; lastRefill advances only when
// tokens were actually added so partial windows are never lost.
func (l *Limiter) Admit(clientKey string) Decision {
	b := l.bucketFor(clientKey)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.nowFunc()
	elapsed := now.Sub(b.lastRefill)
	toAdd := int(elapsed.Seconds() / l.period.Seconds() * float64(l.capacity))
	if toAdd > 0 {
		b.tokens += toAdd
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.lastRefill = now
	}

	if b.tokens <= 0 {
		return Decision{Allowed: false, Remaining: 0}
	}

	b.tokens--
	return Decision{Allowed: true, Remaining: b.tokens}
}

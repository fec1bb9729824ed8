package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more request for key fits in the current window
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryLimiter is a per-process sliding-window limiter
type MemoryLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	maxReqs int
	window  time.Duration
	cleanup *time.Ticker
	now     func() time.Time
}

type bucket struct {
	requests []time.Time
	lastSeen time.Time
}

// NewMemoryLimiter allows maxRequests per key within window
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	limiter := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		maxReqs: maxRequests,
		window:  window,
		cleanup: time.NewTicker(5 * time.Minute),
		now:     time.Now,
	}
	go limiter.cleanupOldBuckets()
	return limiter
}

// Allow records a request for key. An empty key is never limited.
func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if key == "" {
		return true
	}
	return l.take(key, l.maxReqs, l.window)
}

// AllowStrict applies a separate, tighter budget, e.g. for login attempts per client address
func (l *MemoryLimiter) AllowStrict(identifier string, maxReqs int, window time.Duration) bool {
	return l.take("strict:"+identifier, maxReqs, window)
}

func (l *MemoryLimiter) take(key string, maxReqs int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{}
		l.buckets[key] = b
	}

	cutoff := now.Add(-window)
	reqs := b.requests[:0]
	for _, t := range b.requests {
		if t.After(cutoff) {
			reqs = append(reqs, t)
		}
	}
	b.requests = reqs
	b.lastSeen = now

	if len(b.requests) >= maxReqs {
		return false
	}

	b.requests = append(b.requests, now)
	return true
}

func (l *MemoryLimiter) cleanupOldBuckets() {
	for range l.cleanup.C {
		l.mu.Lock()
		staleThreshold := l.now().Add(-15 * time.Minute)
		for key, b := range l.buckets {
			if b.lastSeen.Before(staleThreshold) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// Stop halts the background cleanup
func (l *MemoryLimiter) Stop() {
	l.cleanup.Stop()
}

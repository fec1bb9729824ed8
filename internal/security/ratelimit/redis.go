package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// WindowCounter increments a counter that expires after window
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisLimiter is a fixed-window limiter shared by every replica.
// It fails open when the counter store is unavailable.
type RedisLimiter struct {
	counter WindowCounter
	maxReqs int
	window  time.Duration
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
}

// NewRedisLimiter allows maxRequests per key in each window
func NewRedisLimiter(counter WindowCounter, maxRequests int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		counter: counter,
		maxReqs: maxRequests,
		window:  window,
		prefix:  "ratelimit:",
		now:     time.Now,
		logger:  logger,
	}
}

// Allow increments the key's counter for the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		return true
	}
	slot := l.now().UnixNano() / int64(l.window)
	n, err := l.counter.IncrWindow(ctx, l.prefix+key+":"+strconv.FormatInt(slot, 10), l.window)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	return n <= int64(l.maxReqs)
}

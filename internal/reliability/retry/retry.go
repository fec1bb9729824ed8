// Package retry backs off and retries dependency connections at startup.
// Request-path operations are never retried.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Config holds retry strategy configuration
type Config struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// StartupConfig gives a dependency roughly half a minute to come up
func StartupConfig() *Config {
	return &Config{
		MaxAttempts:       6,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Connect is a connection attempt that yields a ready client
type Connect[T any] func(ctx context.Context) (T, error)

// Do runs fn until it succeeds, attempts run out or ctx ends
func Do[T any](ctx context.Context, cfg *Config, log *slog.Logger, dependency string, fn Connect[T]) (T, error) {
	var zero T
	var lastErr error
	if log == nil {
		log = slog.Default()
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("dependency connected", slog.String("dependency", dependency), slog.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := Backoff(attempt-1, cfg)
		log.Warn("dependency not ready, retrying",
			slog.String("dependency", dependency),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("connect %s: %w", dependency, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("connect %s: gave up after %d attempts: %w", dependency, cfg.MaxAttempts, lastErr)
}

// Backoff is the capped exponential delay before retry n (zero based)
func Backoff(n int, cfg *Config) time.Duration {
	d := time.Duration(float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(n)))
	if d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	return d
}

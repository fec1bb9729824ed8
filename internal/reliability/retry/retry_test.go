package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func fastConfig(attempts int) *Config {
	return &Config{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(5), slog.New(slog.NewTextHandler(io.Discard, nil)), "db",
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection refused")
			}
			return "ok", nil
		})
	if err != nil || got != "ok" || calls != 3 {
		t.Fatalf("got %q err=%v calls=%d", got, err, calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), nil, "redis", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 1}
	go cancel()
	_, err := Do(ctx, cfg, nil, "db", func(context.Context) (int, error) { return 0, errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := StartupConfig()
	if Backoff(0, cfg) != 500*time.Millisecond || Backoff(10, cfg) != 10*time.Second {
		t.Fatalf("backoff: %s %s", Backoff(0, cfg), Backoff(10, cfg))
	}
}

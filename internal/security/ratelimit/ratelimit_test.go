package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	defer l.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if !l.Allow(ctx, "alice") || !l.Allow(ctx, "alice") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow(ctx, "alice") {
		t.Fatalf("third request should be limited")
	}
	if !l.Allow(ctx, "bob") {
		t.Fatalf("other keys are independent")
	}
	if !l.Allow(ctx, "") {
		t.Fatalf("empty key is never limited")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow(ctx, "alice") {
		t.Fatalf("window should have slid")
	}
}

func TestMemoryLimiterStrictIsSeparate(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	defer l.Stop()
	l.Allow(context.Background(), "10.0.0.1")
	if !l.AllowStrict("10.0.0.1", 1, time.Minute) {
		t.Fatalf("strict budget must not share the normal bucket")
	}
	if l.AllowStrict("10.0.0.1", 1, time.Minute) {
		t.Fatalf("strict budget exhausted")
	}
}

type fakeCounter struct {
	counts map[string]int64
	err    error
	keys   []string
}

func (f *fakeCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	f.keys = append(f.keys, key)
	return f.counts[key], nil
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	l := NewRedisLimiter(counter, 3, time.Minute, nil)
	now := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "alice") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if l.Allow(ctx, "alice") {
		t.Fatalf("fourth request should be limited")
	}

	now = now.Add(time.Minute)
	if !l.Allow(ctx, "alice") {
		t.Fatalf("next window should reset the budget")
	}
	if counter.keys[0] == counter.keys[len(counter.keys)-1] {
		t.Fatalf("expected a different window key after a minute")
	}
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	l := NewRedisLimiter(&fakeCounter{err: errors.New("connection refused")}, 1, time.Minute, nil)
	for i := 0; i < 5; i++ {
		if !l.Allow(context.Background(), "alice") {
			t.Fatalf("limiter should fail open")
		}
	}
}

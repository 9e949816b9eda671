package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterWaitSpacesRequests(t *testing.T) {
	l := New(Config{Delay: 100 * time.Millisecond})
	ctx := context.Background()

	// Consume initial token
	if err := l.Wait(ctx, "https://earthquake.example.com/"); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, "https://earthquake.example.com/2018/2018_March.html"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterZeroDelayNeverBlocks(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := l.Wait(ctx, "https://a.example.com/"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("unlimited limiter blocked unexpectedly")
	}
}

func TestLimiterDifferentHosts(t *testing.T) {
	l := New(Config{Delay: time.Second})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Host B should not be blocked by A
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("host B blocked unexpectedly")
	}
}

func TestLimiterRespectsContext(t *testing.T) {
	l := New(Config{Delay: time.Minute})
	if err := l.Wait(context.Background(), "https://a.com/"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://a.com/"); err == nil {
		t.Fatal("expected context error")
	}
}

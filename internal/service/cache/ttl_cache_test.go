package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })

	if err := c.SetBytes(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("expected hit, got %q %v %v", b, ok, err)
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed on read")
	}
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache().WithClock(func() time.Time { return now })
	_ = c.SetBytes(ctx, "k", []byte("v"), 0)
	now = now.Add(24 * time.Hour)
	if _, ok, _ := c.GetBytes(ctx, "k"); !ok {
		t.Fatalf("zero ttl should not expire")
	}
}

func TestTTLCacheMiss(t *testing.T) {
	if _, ok, err := NewTTLCache().GetBytes(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("expected clean miss")
	}
}

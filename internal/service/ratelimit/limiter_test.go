package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllowBurstThenRefill(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		if !l.Allow("a", 3, 1) {
			t.Fatalf("request %d should pass", i)
		}
	}
	if l.Allow("a", 3, 1) {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("b", 3, 1) {
		t.Fatalf("keys must be independent")
	}
	clk.Advance(time.Second)
	if !l.Allow("a", 3, 1) {
		t.Fatalf("one token should have refilled")
	}
	if l.Allow("a", 3, 1) {
		t.Fatalf("only one token refilled")
	}
}

func TestIdleBucketsEvicted(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(WithClock(clk.Now), WithIdleEviction(time.Minute))

	l.Allow("a", 1, 1)
	l.Allow("b", 1, 1)
	if l.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", l.Len())
	}
	clk.Advance(2 * time.Minute)
	l.Allow("c", 1, 1)
	if l.Len() != 1 {
		t.Fatalf("idle keys should be evicted, got %d", l.Len())
	}
}

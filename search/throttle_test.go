package search

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottle_Interval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := NewThrottle(200*time.Millisecond, clock.Now)

	if _, ok := th.Next(10, 100); ok {
		t.Error("update before first interval should be suppressed")
	}

	clock.Advance(200 * time.Millisecond)
	pct, ok := th.Next(10, 100)
	if !ok || pct != 10 {
		t.Errorf("Next = %v, %v; want 10, true", pct, ok)
	}

	clock.Advance(100 * time.Millisecond)
	if _, ok := th.Next(20, 100); ok {
		t.Error("update within interval should be suppressed")
	}
}

func TestThrottle_MonotonicAndClamped(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := NewThrottle(time.Millisecond, clock.Now)

	samples := []int64{50, 30, 120, 90}
	want := []float64{50, 50, 100, 100}
	for i, processed := range samples {
		clock.Advance(time.Millisecond)
		pct, ok := th.Next(processed, 100)
		if !ok {
			t.Fatalf("sample %d: expected update", i)
		}
		if pct != want[i] {
			t.Errorf("sample %d: pct = %v, want %v", i, pct, want[i])
		}
	}
}

func TestThrottle_ZeroTotal(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := NewThrottle(time.Millisecond, clock.Now)
	clock.Advance(time.Second)

	if _, ok := th.Next(0, 0); ok {
		t.Error("no update expected when total is zero")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		processed, total int64
		want             float64
	}{
		{0, 100, 0},
		{25, 100, 25},
		{150, 100, 100},
		{-5, 100, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.processed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %v, want %v", tt.processed, tt.total, got, tt.want)
		}
	}
}

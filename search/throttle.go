package search

import "time"

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// Throttle limits progress updates to one per interval and keeps the
// reported percentage monotonic.
type Throttle struct {
	interval time.Duration
	now      Clock
	last     time.Time
	percent  float64
}

// NewThrottle creates a throttle whose first update is allowed one interval
// after creation.
func NewThrottle(interval time.Duration, now Clock) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, now: now, last: now()}
}

// Next returns the percentage to report and true if an update is due.
// Values are clamped to [0, 100] and never decrease.
func (t *Throttle) Next(processed, total int64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	now := t.now()
	if now.Sub(t.last) < t.interval {
		return 0, false
	}
	t.last = now

	pct := Percent(processed, total)
	if pct < t.percent {
		pct = t.percent
	}
	t.percent = pct
	return pct, true
}

// Percent returns processed/total as a percentage clamped to [0, 100].
func Percent(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(processed) / float64(total) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

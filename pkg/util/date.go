package util

import (
	"strconv"
	"time"
)

// unix values above this are treated as milliseconds
const millisThreshold = 1e11

// ParseTime accepts RFC3339, RFC3339Nano, unix seconds or unix millis.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > millisThreshold {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// AlignToBar truncates t to the start of its bar. Non-positive d returns t.
func AlignToBar(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	return t.Truncate(d)
}

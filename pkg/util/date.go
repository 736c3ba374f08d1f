package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339Nano, RFC3339 and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// BucketStart floors a unix second to the start of its bucket of the given width.
func BucketStart(sec, width int64) int64 {
	if width <= 1 {
		return sec
	}
	b := sec - sec%width
	if sec < 0 && sec%width != 0 {
		b -= width
	}
	return b
}

// UnixSeconds converts milliseconds since epoch to whole seconds.
func UnixSeconds(ms int64) int64 {
	return ms / 1000
}

// NormalizeUnix accepts seconds or milliseconds since epoch and returns seconds.
func NormalizeUnix(v int64) int64 {
	if v > 1e11 {
		return UnixSeconds(v)
	}
	return v
}

package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a bare UTC date and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses s or returns def if empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseSince accepts an absolute time or a lookback duration such as "72h",
// which is taken relative to now.
func ParseSince(s string, now time.Time) (time.Time, bool) {
	if t, ok := ParseTime(s); ok {
		return t, true
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d).UTC(), true
	}
	return time.Time{}, false
}

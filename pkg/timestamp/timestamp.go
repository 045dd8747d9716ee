// Package timestamp normalizes daemon timestamps to Unix milliseconds.
//
// The daemon stamps messages with a float epoch whose unit depends on the
// emitter: seconds, milliseconds or microseconds. Normalize picks the unit
// from the magnitude. A value of 0 means "not set" everywhere in this package.
package timestamp

import (
	"math"
	"time"
)

// Magnitude thresholds: 1e11 seconds is year 5138, 1e14 milliseconds is
// year 5138 as well.
const (
	msThreshold = 1e11
	usThreshold = 1e14
)

// Normalize converts a daemon epoch to Unix milliseconds.
// Negative, NaN and infinite inputs give 0.
func Normalize(v float64) int64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	switch {
	case v >= usThreshold:
		return int64(v / 1000)
	case v >= msThreshold:
		return int64(v)
	default:
		return int64(math.Round(v * 1000))
	}
}

// ToTime converts Unix milliseconds to time.Time.
// Returns zero time if ms is 0.
func ToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format renders Unix milliseconds as RFC3339 with milliseconds, in UTC.
// Returns empty string if ms is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Between returns the duration from start to end.
// Returns 0 if either timestamp is zero or end precedes start.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 || end < start {
		return 0
	}
	return time.Duration(end-start) * time.Millisecond
}

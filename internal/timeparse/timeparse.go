// Package timeparse extends a plain epoch-float timestamp
// handling (the original toTime helper) with a fallback for the
// ISO-8601 strings occasionally seen in older export generations
// recovered under recovered_files/, per SPEC_FULL.md §9.
package timeparse

import (
	"math"
	"time"

	"github.com/araddon/dateparse"
)

// FromEpoch converts a ChatGPT export's Unix-epoch-with-fraction
// create_time/update_time value to a time.Time.
func FromEpoch(value *float64) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	seconds, frac := math.Modf(*value)
	t := time.Unix(int64(seconds), int64(frac*1e9)).UTC()
	if t.IsZero() || t.Unix() == 0 {
		return time.Time{}, false
	}
	return t, true
}

// FromString parses a timestamp that arrived as a string rather than
// an epoch float, using dateparse's format-inferring parser so the
// loader doesn't need to enumerate every export generation's layout.
func FromString(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

package storage

import "time"

// timestampLayout is a fixed-width RFC3339 variant (always 9 fractional
// digits, zero-padded) used for every stored timestamp column. time.RFC3339Nano
// trims trailing zeros, which would make the lexicographic range
// comparisons this package relies on (created_at >= ?, last_emitted_at < ?)
// incorrect whenever two timestamps have a different number of significant
// fractional digits.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

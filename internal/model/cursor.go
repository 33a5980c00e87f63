package model

import (
	"fmt"
	"time"
)

// TimestampLayout is the persisted timestamp form. It is fixed width and
// always UTC, so comparing two formatted values as strings gives the same
// answer as comparing the instants.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp. RFC 3339 input
// (as sent by upstream) is accepted as well.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Cursor marks how far ingestion of one entity type has progressed for one
// store: the largest upstream modification time that has been durably
// written. Page tokens are never persisted as cursors.
type Cursor struct {
	StoreID   string
	Entity    EntityType
	Watermark time.Time
	UpdatedAt time.Time
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

package syncengine

import (
	"fmt"
	"time"
)

// isoLayout is the wire format for delta tokens and __updatedAt/
// __createdAt: ISO-8601 UTC, no locale.
const isoLayout = "2006-01-02T15:04:05.000Z"

// epoch is the default delta token value when none has been persisted yet
// before an incremental pull's first request.
var epoch = time.Unix(0, 0).UTC()

// FormatSyncTime renders t as the wire ISO-8601 UTC string the engine
// persists for delta tokens and compares __updatedAt against.
func FormatSyncTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseSyncTime parses the wire ISO-8601 UTC string produced by
// FormatSyncTime. FormatSyncTime∘ParseSyncTime is the identity for any
// timestamp the engine itself produced.
func ParseSyncTime(s string) (time.Time, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sync timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// itemUpdatedAt extracts __updatedAt from a server item. ok is false when
// the field is absent, empty, or unparsable; callers skip such rows
// entirely rather than coercing them to the zero time.
func itemUpdatedAt(it Item) (t time.Time, ok bool) {
	raw, present := it[SystemFieldUpdatedAt]
	if !present {
		return time.Time{}, false
	}
	s, isString := raw.(string)
	if !isString || s == "" {
		return time.Time{}, false
	}
	parsed, err := ParseSyncTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

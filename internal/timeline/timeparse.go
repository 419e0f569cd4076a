package timeline

import (
	"errors"
	"strings"
	"time"
)

// naiveLayouts are accepted for timestamps without an offset. The event
// store writes "2006-01-02 15:04"; feeds usually send the T form.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var errEmptyTimestamp = errors.New("empty timestamp")

// parseTimestamp parses an RFC 3339 timestamp or one of the naive layouts.
// Naive values are read in tz when it names a loadable zone, else in fallback.
func parseTimestamp(v, tz string, fallback *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return time.Time{}, errEmptyTimestamp
	}

	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}

	loc := resolveZone(tz, fallback)
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unparseable timestamp " + quote(v))
}

func resolveZone(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

func quote(s string) string {
	const limit = 40
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return `"` + s + `"`
}

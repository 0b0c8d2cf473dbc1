package tasks

import (
	"strings"
	"time"
)

// abbrevOnlyLayout carries a zone abbreviation and no numeric offset.
const abbrevOnlyLayout = "2006-01-02 15:04:05.999999999 MST"

// timeLayouts is tried in order; the first layout that parses wins.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	abbrevOnlyLayout,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses the timestamp formats found in tog records. Values without
// a zone are read as UTC, which is how the database stores them. A bare zone
// abbreviation is only accepted for UTC and GMT; time.Parse would read any
// other one as a zero offset.
func ParseTime(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == abbrevOnlyLayout {
			if name, _ := t.Zone(); name != "UTC" && name != "GMT" {
				return time.Time{}, &ParseError{Value: value}
			}
		}
		return t, nil
	}
	return time.Time{}, &ParseError{Value: value}
}

// FormatISO renders t like Python's isoformat: microseconds only when non-zero
// and a numeric offset, never "Z".
func FormatISO(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format("2006-01-02T15:04:05.000000-07:00")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}

// ToLocation re-expresses a stored UTC timestamp in loc.
func ToLocation(value string, loc *time.Location) (string, error) {
	t, err := ParseTime(value)
	if err != nil {
		return "", err
	}
	if loc == nil {
		loc = time.UTC
	}
	return FormatISO(t.In(loc)), nil
}

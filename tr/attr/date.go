package attr

import (
	"time"
)

// UnknownTime is the CWMP representation of an unset date.
const UnknownTime = "0001-01-01T00:00:00Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses the ISO-8601 forms used by CWMP. Times without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// FormatDate renders a date value for the wire, with 'Z' for UTC.
func FormatDate(v any) string {
	t, ok := v.(time.Time)
	if !ok || t.IsZero() {
		return UnknownTime
	}
	if _, off := t.Zone(); off != 0 {
		return t.Format(time.RFC3339Nano)
	}
	t = t.UTC()
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02T15:04:05.000000Z")
	}
	return t.Format("2006-01-02T15:04:05Z")
}

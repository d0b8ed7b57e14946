package sync

import (
	"fmt"
	"strings"
	"time"

	"biometric-attendance-sync/pkg/errors"
)

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp reads a device timestamp. RFC3339 values keep their offset;
// zone-less values are taken as wall clock time in loc. The result is UTC at
// millisecond precision, matching what the audit table stores.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", errors.ErrInvalidTimestamp)
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return normalize(t), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return normalize(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", errors.ErrInvalidTimestamp, value)
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

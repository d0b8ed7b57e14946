package sync

import (
	"errors"
	"testing"
	"time"

	apperrors "biometric-attendance-sync/pkg/errors"
)

func TestParseTimestamp(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*3600)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 utc", "2024-03-04T07:10:00Z", time.Date(2024, 3, 4, 7, 10, 0, 0, time.UTC)},
		{"rfc3339 offset", "2024-03-04T07:10:00+07:00", time.Date(2024, 3, 4, 0, 10, 0, 0, time.UTC)},
		{"zone-less uses school time", "2024-03-04T07:10:00", time.Date(2024, 3, 4, 0, 10, 0, 0, time.UTC)},
		{"space separated", "2024-03-04 07:10:00", time.Date(2024, 3, 4, 0, 10, 0, 0, time.UTC)},
		{"minutes only", "2024-03-04 07:10", time.Date(2024, 3, 4, 0, 10, 0, 0, time.UTC)},
		{"sub-millisecond dropped", "2024-03-04T07:10:00.123456Z", time.Date(2024, 3, 4, 7, 10, 0, 123000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, bangkok)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "04/03/2024 07:10", "2024-13-04T07:10:00", "1709536200"} {
		_, err := ParseTimestamp(input, time.UTC)
		if !errors.Is(err, apperrors.ErrInvalidTimestamp) {
			t.Errorf("ParseTimestamp(%q): expected ErrInvalidTimestamp, got %v", input, err)
		}
	}
}

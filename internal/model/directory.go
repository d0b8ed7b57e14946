package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Student is the subset of the student directory record this service reads.
type Student struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	StudentNumber string `json:"studentNumber"`
	ClassID       int64  `json:"classId"`
	SectionID     int64  `json:"sectionId"`
}

// Schedule is one weekly class session from the schedule directory.
// DayOfWeek follows time.Weekday: 0 is Sunday.
type Schedule struct {
	ID        int64  `json:"id"`
	ClassID   int64  `json:"classId"`
	TeacherID int64  `json:"teacherId"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type AuthTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// ParseClock parses H:MM, HH:MM or HH:MM:SS into seconds since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}

	limits := []int{23, 59, 59}
	total := 0
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		total = total*60 + v
	}
	if len(parts) == 2 {
		total *= 60
	}
	return total, nil
}

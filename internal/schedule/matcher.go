package schedule

import (
	"context"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/directory"
	"biometric-attendance-sync/internal/model"
)

// Matcher maps scan instants onto class sessions. It keeps no state beyond
// its configuration.
type Matcher struct {
	lookup        directory.ScheduleLookup
	location      *time.Location
	lateThreshold time.Duration
}

func NewMatcher(lookup directory.ScheduleLookup, location *time.Location, lateThreshold time.Duration) *Matcher {
	if location == nil {
		location = time.UTC
	}
	return &Matcher{
		lookup:        lookup,
		location:      location,
		lateThreshold: lateThreshold,
	}
}

// NewMatcherFromConfig uses the school timezone and the configured grace period.
func NewMatcherFromConfig(lookup directory.ScheduleLookup, cfg *config.Config) *Matcher {
	return NewMatcher(lookup, cfg.Location(), cfg.Attendance.LateThreshold)
}

// FindSchedule returns the earliest session for the class on the weekday of
// at, in the school timezone. A nil schedule with a nil error means the class
// does not meet that day.
func (m *Matcher) FindSchedule(ctx context.Context, tenantID string, classID int64, at time.Time) (*model.Schedule, error) {
	dayOfWeek := int(at.In(m.location).Weekday())
	return m.lookup.FindByClassAndDay(ctx, tenantID, classID, dayOfWeek)
}

// Classify decides present or late for a scan against a session start.
func (m *Matcher) Classify(scheduleStart string, at time.Time) (model.AttendanceStatus, error) {
	return Classify(scheduleStart, at.In(m.location), m.lateThreshold)
}

// Classify compares time-of-day only, at second resolution: a scan exactly at
// start+threshold is present, one second later is late.
func Classify(scheduleStart string, at time.Time, lateThreshold time.Duration) (model.AttendanceStatus, error) {
	start, err := model.ParseClock(scheduleStart)
	if err != nil {
		return "", err
	}

	deadline := start + int(lateThreshold/time.Second)
	if SecondsSinceMidnight(at) <= deadline {
		return model.AttendanceStatusPresent, nil
	}
	return model.AttendanceStatusLate, nil
}

func SecondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

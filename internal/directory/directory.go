package directory

import (
	"context"
	"math"
	"sort"

	"biometric-attendance-sync/internal/model"
)

// StudentLookup resolves students from the school directory. A missing
// student is reported as a NotFoundError.
type StudentLookup interface {
	GetStudent(ctx context.Context, tenantID string, studentID int64) (*model.Student, error)
}

// ScheduleLookup returns the earliest session of a class on a weekday, or nil
// when the class does not meet that day.
type ScheduleLookup interface {
	FindByClassAndDay(ctx context.Context, tenantID string, classID int64, dayOfWeek int) (*model.Schedule, error)
}

// Earliest picks the session with the lowest start time. Start times that do
// not parse sort last.
func Earliest(schedules []model.Schedule) *model.Schedule {
	if len(schedules) == 0 {
		return nil
	}

	type candidate struct {
		schedule model.Schedule
		start    int
	}
	candidates := make([]candidate, len(schedules))
	for i, schedule := range schedules {
		start, err := model.ParseClock(schedule.StartTime)
		if err != nil {
			start = math.MaxInt
		}
		candidates[i] = candidate{schedule: schedule, start: start}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].start == candidates[j].start {
			return candidates[i].schedule.ID < candidates[j].schedule.ID
		}
		return candidates[i].start < candidates[j].start
	})
	return &candidates[0].schedule
}

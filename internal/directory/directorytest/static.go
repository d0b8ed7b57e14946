// Package directorytest provides an in-memory school directory for tests.
package directorytest

import (
	"context"
	"sync"

	"biometric-attendance-sync/internal/directory"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"
)

type Static struct {
	mu        sync.RWMutex
	students  map[int64]model.Student
	schedules []model.Schedule

	// StudentErr, when set, is returned by every GetStudent call.
	StudentErr error
}

func New() *Static {
	return &Static{students: map[int64]model.Student{}}
}

func (s *Static) AddStudent(student model.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[student.ID] = student
}

func (s *Static) AddSchedule(schedule model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, schedule)
}

func (s *Static) GetStudent(ctx context.Context, tenantID string, studentID int64) (*model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StudentErr != nil {
		return nil, s.StudentErr
	}
	student, ok := s.students[studentID]
	if !ok {
		return nil, errors.NewNotFoundError("student", studentID)
	}
	return &student, nil
}

func (s *Static) FindByClassAndDay(ctx context.Context, tenantID string, classID int64, dayOfWeek int) (*model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []model.Schedule
	for _, schedule := range s.schedules {
		if schedule.ClassID == classID && schedule.DayOfWeek == dayOfWeek {
			matches = append(matches, schedule)
		}
	}
	return directory.Earliest(matches), nil
}

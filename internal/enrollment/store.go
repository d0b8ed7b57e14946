package enrollment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"biometric-attendance-sync/internal/db"
	"biometric-attendance-sync/internal/directory"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"

	"github.com/rs/zerolog"
)

// DeviceGetter is the part of the device registry the store depends on.
type DeviceGetter interface {
	Get(ctx context.Context, tenantID string, id int64) (*model.BiometricDevice, error)
}

// Store owns the binding between device templates and students. Rows are
// never removed; unenrolling flips them to deleted so audit rows stay
// attributable.
type Store struct {
	repo     db.EnrollmentRepository
	devices  DeviceGetter
	students directory.StudentLookup
	now      func() time.Time
	log      zerolog.Logger
}

func NewStore(repo db.EnrollmentRepository, devices DeviceGetter, students directory.StudentLookup) *Store {
	return &Store{
		repo:     repo,
		devices:  devices,
		students: students,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Get(),
	}
}

// Enroll binds templateID to the student on the device, replacing the
// template of an existing enrolled row for the same student.
func (s *Store) Enroll(ctx context.Context, tenantID string, deviceID, studentID int64, templateID string, metadata json.RawMessage) (*model.BiometricEnrollment, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" || len(templateID) > 255 {
		return nil, errors.ValidationError{Field: "templateId", Value: templateID, Message: "must be 1-255 characters"}
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, errors.ValidationError{Field: "metadata", Value: string(metadata), Message: "must be valid JSON"}
	}

	if _, err := s.devices.Get(ctx, tenantID, deviceID); err != nil {
		return nil, err
	}
	if _, err := s.students.GetStudent(ctx, tenantID, studentID); err != nil {
		return nil, err
	}

	enrollment := &model.BiometricEnrollment{
		TenantID:   tenantID,
		DeviceID:   deviceID,
		StudentID:  studentID,
		TemplateID: templateID,
		Metadata:   metadata,
		Status:     model.EnrollmentStatusEnrolled,
		EnrolledAt: s.now(),
	}

	id, err := s.repo.Upsert(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	enrollment.ID = id

	s.log.Info().
		Str("tenant_id", tenantID).
		Int64("device_id", deviceID).
		Int64("student_id", studentID).
		Int64("enrollment_id", id).
		Msg("Student enrolled")

	return enrollment, nil
}

// ListForDevice returns the device's enrolled rows with student display data.
// A student the directory no longer knows is listed without display fields.
func (s *Store) ListForDevice(ctx context.Context, tenantID string, deviceID int64) ([]model.EnrollmentView, error) {
	if _, err := s.devices.Get(ctx, tenantID, deviceID); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.ListEnrolled(ctx, tenantID, deviceID)
	if err != nil {
		return nil, err
	}

	views := make([]model.EnrollmentView, 0, len(enrollments))
	for _, enrollment := range enrollments {
		view := model.EnrollmentView{BiometricEnrollment: enrollment}

		student, err := s.students.GetStudent(ctx, tenantID, enrollment.StudentID)
		switch {
		case err == nil:
			view.StudentName = student.Name
			view.StudentNumber = student.StudentNumber
			view.ClassID = student.ClassID
		case errors.IsNotFound(err):
			s.log.Warn().Int64("student_id", enrollment.StudentID).Msg("Enrolled student missing from directory")
		default:
			return nil, err
		}

		views = append(views, view)
	}

	return views, nil
}

// Unenroll soft-deletes the enrollment. Unenrolling twice is a no-op.
func (s *Store) Unenroll(ctx context.Context, tenantID string, enrollmentID int64) (*model.BiometricEnrollment, error) {
	enrollment, err := s.repo.GetByID(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == model.EnrollmentStatusDeleted {
		return enrollment, nil
	}

	deletedAt := s.now()
	if err := s.repo.MarkDeleted(ctx, tenantID, enrollmentID, deletedAt); err != nil {
		return nil, err
	}
	enrollment.Status = model.EnrollmentStatusDeleted
	enrollment.DeletedAt = &deletedAt

	s.log.Info().Str("tenant_id", tenantID).Int64("enrollment_id", enrollmentID).Msg("Student unenrolled")
	return enrollment, nil
}

// Resolve returns the enrolled row for a device template, or nil.
func (s *Store) Resolve(ctx context.Context, tenantID string, deviceID int64, templateID string) (*model.BiometricEnrollment, error) {
	return s.repo.FindByTemplate(ctx, tenantID, deviceID, templateID)
}

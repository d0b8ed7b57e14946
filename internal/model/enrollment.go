package model

import (
	"encoding/json"
	"time"
)

type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled EnrollmentStatus = "enrolled"
	EnrollmentStatusDeleted  EnrollmentStatus = "deleted"
)

// BiometricEnrollment binds a device-local template id to a student.
type BiometricEnrollment struct {
	ID         int64            `json:"id" db:"id"`
	TenantID   string           `json:"tenant_id" db:"tenant_id"`
	DeviceID   int64            `json:"device_id" db:"device_id"`
	StudentID  int64            `json:"student_id" db:"student_id"`
	TemplateID string           `json:"template_id" db:"template_id"`
	Metadata   json.RawMessage  `json:"metadata,omitempty" db:"metadata"`
	Status     EnrollmentStatus `json:"status" db:"status"`
	EnrolledAt time.Time        `json:"enrolled_at" db:"enrolled_at"`
	DeletedAt  *time.Time       `json:"deleted_at,omitempty" db:"deleted_at"`
}

type EnrollRequest struct {
	StudentID  int64           `json:"studentId" binding:"required"`
	TemplateID string          `json:"templateId" binding:"required"`
	Metadata   json.RawMessage `json:"metadata"`
}

// EnrollmentView is an enrollment joined with the student's display data.
type EnrollmentView struct {
	BiometricEnrollment
	StudentName   string `json:"student_name"`
	StudentNumber string `json:"student_number,omitempty"`
	ClassID       int64  `json:"class_id,omitempty"`
}

package model

import (
	"encoding/json"
	"time"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

type ScanType string

const (
	ScanTypeCheckIn  ScanType = "check_in"
	ScanTypeCheckOut ScanType = "check_out"
	ScanTypeUnknown  ScanType = "unknown"
)

// NormalizeScanType maps device-reported type labels onto ScanType.
func NormalizeScanType(s string) ScanType {
	switch s {
	case "", "check_in", "checkin", "in", "0":
		return ScanTypeCheckIn
	case "check_out", "checkout", "out", "1":
		return ScanTypeCheckOut
	default:
		return ScanTypeUnknown
	}
}

// BiometricAttendance is the append-only audit row for one ingested scan.
// FailedAttempts counts derivations that ended in failed.
type BiometricAttendance struct {
	ID             int64           `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	DeviceID       int64           `json:"device_id" db:"device_id"`
	StudentID      int64           `json:"student_id" db:"student_id"`
	TemplateID     string          `json:"template_id" db:"template_id"`
	ScanType       ScanType        `json:"scan_type" db:"scan_type"`
	ScannedAt      time.Time       `json:"scanned_at" db:"scanned_at"`
	ScanDate       string          `json:"scan_date" db:"scan_date"`
	ScanTime       string          `json:"scan_time" db:"scan_time"`
	RawData        json.RawMessage `json:"raw_data,omitempty" db:"raw_data"`
	SyncStatus     SyncStatus      `json:"sync_status" db:"sync_status"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty" db:"synced_at"`
	SyncError      *string         `json:"sync_error,omitempty" db:"sync_error"`
	FailedAttempts int             `json:"failed_attempts" db:"failed_attempts"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

const AttendanceSourceBiometric = "biometric"

// Attendance is the canonical per-session record, one per
// (tenant, student, schedule, date).
type Attendance struct {
	ID             int64            `json:"id" db:"id"`
	TenantID       string           `json:"tenant_id" db:"tenant_id"`
	StudentID      int64            `json:"student_id" db:"student_id"`
	ScheduleID     int64            `json:"schedule_id" db:"schedule_id"`
	AttendanceDate string           `json:"attendance_date" db:"attendance_date"`
	Status         AttendanceStatus `json:"status" db:"status"`
	TeacherID      *int64           `json:"teacher_id,omitempty" db:"teacher_id"`
	DeviceID       *int64           `json:"device_id,omitempty" db:"device_id"`
	Source         string           `json:"source" db:"source"`
	CheckInTime    string           `json:"check_in_time,omitempty" db:"check_in_time"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

package db

import (
	"context"
	"database/sql"
	"errors"

	"biometric-attendance-sync/internal/model"
)

// AttendanceRepository writes canonical attendance rows.
type AttendanceRepository interface {
	FindExisting(ctx context.Context, tenantID string, studentID, scheduleID int64, date string) (*model.Attendance, error)
	Insert(ctx context.Context, record *model.Attendance) (bool, error)
}

type attendanceRepository struct {
	db *sql.DB
}

func NewAttendanceRepository(db *sql.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) FindExisting(ctx context.Context, tenantID string, studentID, scheduleID int64, date string) (*model.Attendance, error) {
	query := `SELECT id, tenant_id, student_id, schedule_id, attendance_date, status, teacher_id, device_id,
			source, check_in_time, created_at
		FROM attendances
		WHERE tenant_id = ? AND student_id = ? AND schedule_id = ? AND attendance_date = ?`

	var record model.Attendance
	err := r.db.QueryRowContext(ctx, query, tenantID, studentID, scheduleID, date).Scan(
		&record.ID, &record.TenantID, &record.StudentID, &record.ScheduleID, &record.AttendanceDate,
		&record.Status, &record.TeacherID, &record.DeviceID, &record.Source, &record.CheckInTime, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// Insert returns false when uq_attendance_session already has the row.
func (r *attendanceRepository) Insert(ctx context.Context, record *model.Attendance) (bool, error) {
	query := `INSERT IGNORE INTO attendances
		(tenant_id, student_id, schedule_id, attendance_date, status, teacher_id, device_id, source, check_in_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, record.TenantID, record.StudentID, record.ScheduleID,
		record.AttendanceDate, record.Status, record.TeacherID, record.DeviceID, record.Source,
		record.CheckInTime, record.CreatedAt)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return true, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"
)

type EnrollmentRepository interface {
	Upsert(ctx context.Context, enrollment *model.BiometricEnrollment) (int64, error)
	GetByID(ctx context.Context, tenantID string, id int64) (*model.BiometricEnrollment, error)
	ListEnrolled(ctx context.Context, tenantID string, deviceID int64) ([]model.BiometricEnrollment, error)
	MarkDeleted(ctx context.Context, tenantID string, id int64, deletedAt time.Time) error
	FindByTemplate(ctx context.Context, tenantID string, deviceID int64, templateID string) (*model.BiometricEnrollment, error)
}

type enrollmentRepository struct {
	db *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

const enrollmentColumns = `id, tenant_id, device_id, student_id, template_id, metadata, status, enrolled_at, deleted_at`

// Upsert inserts an enrolled row or, when the (tenant, device, student) triple
// already has one, rewrites it in place. uq_enrollment_active only covers
// enrolled rows, so soft-deleted history never collides.
func (r *enrollmentRepository) Upsert(ctx context.Context, enrollment *model.BiometricEnrollment) (int64, error) {
	query := `INSERT INTO biometric_enrollments
		(tenant_id, device_id, student_id, template_id, metadata, status, enrolled_at)
		VALUES (?, ?, ?, ?, ?, 'enrolled', ?)
		ON DUPLICATE KEY UPDATE
			id = LAST_INSERT_ID(id),
			template_id = VALUES(template_id),
			metadata = VALUES(metadata),
			enrolled_at = VALUES(enrolled_at)`

	res, err := r.db.ExecContext(ctx, query, enrollment.TenantID, enrollment.DeviceID, enrollment.StudentID,
		enrollment.TemplateID, nullableJSON(enrollment.Metadata), enrollment.EnrolledAt)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (r *enrollmentRepository) GetByID(ctx context.Context, tenantID string, id int64) (*model.BiometricEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM biometric_enrollments WHERE tenant_id = ? AND id = ?`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("enrollment", id)
		}
		return nil, err
	}

	return enrollment, nil
}

func (r *enrollmentRepository) ListEnrolled(ctx context.Context, tenantID string, deviceID int64) ([]model.BiometricEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM biometric_enrollments
		WHERE tenant_id = ? AND device_id = ? AND status = 'enrolled'
		ORDER BY enrolled_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []model.BiometricEnrollment{}
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *enrollment)
	}

	return enrollments, rows.Err()
}

// MarkDeleted soft-deletes an enrollment. Rows already deleted keep their
// original deleted_at.
func (r *enrollmentRepository) MarkDeleted(ctx context.Context, tenantID string, id int64, deletedAt time.Time) error {
	query := `UPDATE biometric_enrollments
		SET status = 'deleted', deleted_at = COALESCE(deleted_at, ?)
		WHERE tenant_id = ? AND id = ?`

	res, err := r.db.ExecContext(ctx, query, deletedAt, tenantID, id)
	if err != nil {
		return err
	}

	return requireAffected(res, "enrollment", id)
}

// FindByTemplate returns the enrolled row for a device template, or nil.
func (r *enrollmentRepository) FindByTemplate(ctx context.Context, tenantID string, deviceID int64, templateID string) (*model.BiometricEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM biometric_enrollments
		WHERE tenant_id = ? AND device_id = ? AND template_id = ? AND status = 'enrolled'
		ORDER BY enrolled_at DESC, id DESC
		LIMIT 1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, tenantID, deviceID, templateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return enrollment, nil
}

func scanEnrollment(row rowScanner) (*model.BiometricEnrollment, error) {
	var (
		enrollment model.BiometricEnrollment
		metadata   []byte
	)
	err := row.Scan(&enrollment.ID, &enrollment.TenantID, &enrollment.DeviceID, &enrollment.StudentID,
		&enrollment.TemplateID, &metadata, &enrollment.Status, &enrollment.EnrolledAt, &enrollment.DeletedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		enrollment.Metadata = metadata
	}
	return &enrollment, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"biometric-attendance-sync/internal/model"
)

// ScanRepository stores the biometric_attendances audit trail.
type ScanRepository interface {
	FindScan(ctx context.Context, tenantID string, deviceID, studentID int64, scannedAt time.Time) (*model.BiometricAttendance, error)
	InsertScan(ctx context.Context, scan *model.BiometricAttendance) (int64, bool, error)
	MarkScanSynced(ctx context.Context, id int64, syncedAt time.Time) error
	MarkScanFailed(ctx context.Context, id int64, reason string) error
	ListPending(ctx context.Context, tenantID string, deviceID *int64, limit int) ([]model.BiometricAttendance, error)
	ListUnsynced(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]model.BiometricAttendance, error)
	Statistics(ctx context.Context, tenantID string, filter model.StatsFilter) (*model.SyncStatistics, error)
}

type scanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) ScanRepository {
	return &scanRepository{db: db}
}

const scanColumns = `id, tenant_id, device_id, student_id, template_id, scan_type, scanned_at, scan_date, scan_time,
	raw_data, sync_status, synced_at, sync_error, failed_attempts, created_at`

func (r *scanRepository) FindScan(ctx context.Context, tenantID string, deviceID, studentID int64, scannedAt time.Time) (*model.BiometricAttendance, error) {
	query := `SELECT ` + scanColumns + ` FROM biometric_attendances
		WHERE tenant_id = ? AND device_id = ? AND student_id = ? AND scanned_at = ?`

	scan, err := scanScan(r.db.QueryRowContext(ctx, query, tenantID, deviceID, studentID, scannedAt.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return scan, nil
}

// InsertScan writes a new audit row. The returned bool is false when uq_scan
// already holds the key, which happens when an identical event raced this one.
func (r *scanRepository) InsertScan(ctx context.Context, scan *model.BiometricAttendance) (int64, bool, error) {
	query := `INSERT IGNORE INTO biometric_attendances
		(tenant_id, device_id, student_id, template_id, scan_type, scanned_at, scan_date, scan_time,
		 raw_data, sync_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, scan.TenantID, scan.DeviceID, scan.StudentID, scan.TemplateID,
		scan.ScanType, scan.ScannedAt.UTC(), scan.ScanDate, scan.ScanTime, nullableJSON(scan.RawData),
		scan.SyncStatus, scan.CreatedAt)
	if err != nil {
		return 0, false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *scanRepository) MarkScanSynced(ctx context.Context, id int64, syncedAt time.Time) error {
	query := `UPDATE biometric_attendances SET sync_status = 'synced', synced_at = ?, sync_error = NULL WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, syncedAt, id)
	return err
}

func (r *scanRepository) MarkScanFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE biometric_attendances
		SET sync_status = 'failed', sync_error = ?, failed_attempts = failed_attempts + 1
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, reason, id)
	return err
}

func (r *scanRepository) ListPending(ctx context.Context, tenantID string, deviceID *int64, limit int) ([]model.BiometricAttendance, error) {
	query := `SELECT ` + scanColumns + ` FROM biometric_attendances WHERE tenant_id = ? AND sync_status = 'pending'`
	args := []interface{}{tenantID}
	if deviceID != nil {
		query += ` AND device_id = ?`
		args = append(args, *deviceID)
	}
	query += ` ORDER BY scanned_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := []model.BiometricAttendance{}
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}

	return scans, rows.Err()
}

// ListUnsynced returns pending and failed rows of every tenant created inside
// the window. Rows with fewer failed attempts come first, then oldest first, so
// rows that keep failing cannot hold back rows that were never retried.
func (r *scanRepository) ListUnsynced(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]model.BiometricAttendance, error) {
	query := `SELECT ` + scanColumns + ` FROM biometric_attendances
		WHERE sync_status IN ('pending', 'failed') AND created_at > ? AND created_at < ?
		ORDER BY failed_attempts ASC, created_at ASC, id ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, createdAfter.UTC(), createdBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := []model.BiometricAttendance{}
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}

	return scans, rows.Err()
}

func (r *scanRepository) Statistics(ctx context.Context, tenantID string, filter model.StatsFilter) (*model.SyncStatistics, error) {
	query := `SELECT sync_status, scan_type, COUNT(*) FROM biometric_attendances WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if filter.DeviceID != nil {
		query += ` AND device_id = ?`
		args = append(args, *filter.DeviceID)
	}
	if filter.From != nil {
		query += ` AND scanned_at >= ?`
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		query += ` AND scanned_at <= ?`
		args = append(args, filter.To.UTC())
	}
	query += ` GROUP BY sync_status, scan_type`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &model.SyncStatistics{
		BySyncStatus: map[model.SyncStatus]int{
			model.SyncStatusPending: 0,
			model.SyncStatusSynced:  0,
			model.SyncStatusFailed:  0,
		},
		ByScanType: map[model.ScanType]int{},
		DeviceID:   filter.DeviceID,
		From:       filter.From,
		To:         filter.To,
	}
	for rows.Next() {
		var (
			status   model.SyncStatus
			scanType model.ScanType
			count    int
		)
		if err := rows.Scan(&status, &scanType, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.BySyncStatus[status] += count
		stats.ByScanType[scanType] += count
	}

	return stats, rows.Err()
}

func scanScan(row rowScanner) (*model.BiometricAttendance, error) {
	var (
		scan    model.BiometricAttendance
		rawData []byte
	)
	err := row.Scan(&scan.ID, &scan.TenantID, &scan.DeviceID, &scan.StudentID, &scan.TemplateID, &scan.ScanType,
		&scan.ScannedAt, &scan.ScanDate, &scan.ScanTime, &rawData, &scan.SyncStatus, &scan.SyncedAt,
		&scan.SyncError, &scan.FailedAttempts, &scan.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(rawData) > 0 {
		scan.RawData = rawData
	}
	return &scan, nil
}

package db

import (
	"context"
	"database/sql"
)

// The unique keys here are what make ingestion idempotent: the engine relies
// on them instead of locking.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS biometric_devices (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		device_id VARCHAR(128) NOT NULL,
		name VARCHAR(255) NOT NULL,
		device_type VARCHAR(32) NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		port INT NOT NULL DEFAULT 0,
		config JSON NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		last_sync_at DATETIME(3) NULL,
		last_error TEXT NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_device_tenant_device (tenant_id, device_id),
		KEY idx_device_tenant_created (tenant_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS biometric_enrollments (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		device_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		template_id VARCHAR(255) NOT NULL,
		metadata JSON NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'enrolled',
		enrolled_flag TINYINT AS (IF(status = 'enrolled', 1, NULL)) STORED,
		enrolled_at DATETIME(3) NOT NULL,
		deleted_at DATETIME(3) NULL,
		UNIQUE KEY uq_enrollment_active (tenant_id, device_id, student_id, enrolled_flag),
		KEY idx_enrollment_template (tenant_id, device_id, template_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS biometric_attendances (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		device_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		template_id VARCHAR(255) NOT NULL,
		scan_type VARCHAR(16) NOT NULL,
		scanned_at DATETIME(3) NOT NULL,
		scan_date CHAR(10) NOT NULL,
		scan_time VARCHAR(8) NOT NULL,
		raw_data JSON NULL,
		sync_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		synced_at DATETIME(3) NULL,
		sync_error TEXT NULL,
		failed_attempts INT NOT NULL DEFAULT 0,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_scan (tenant_id, device_id, student_id, scanned_at),
		KEY idx_scan_status (tenant_id, sync_status, device_id),
		KEY idx_scan_date (tenant_id, scan_date),
		KEY idx_scan_unsynced (sync_status, failed_attempts, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS attendances (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		student_id BIGINT NOT NULL,
		schedule_id BIGINT NOT NULL,
		attendance_date CHAR(10) NOT NULL,
		status VARCHAR(16) NOT NULL,
		teacher_id BIGINT NULL,
		device_id BIGINT NULL,
		source VARCHAR(32) NOT NULL,
		check_in_time VARCHAR(8) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_attendance_session (tenant_id, student_id, schedule_id, attendance_date)
	)`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		database.Close()
	})

	return database, mock
}

func TestScanRepository_InsertScan(t *testing.T) {
	database, mock := newMock(t)
	repo := NewScanRepository(database)

	scan := &model.BiometricAttendance{
		TenantID:   "tenant-a",
		DeviceID:   1,
		StudentID:  5,
		TemplateID: "A1",
		ScanType:   model.ScanTypeCheckIn,
		ScannedAt:  time.Date(2024, 3, 4, 7, 10, 0, 0, time.UTC),
		ScanDate:   "2024-03-04",
		ScanTime:   "07:10:00",
		SyncStatus: model.SyncStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	insert := regexp.QuoteMeta("INSERT IGNORE INTO biometric_attendances")
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))

	id, inserted, err := repo.InsertScan(context.Background(), scan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted || id != 42 {
		t.Errorf("expected new row 42, got id=%d inserted=%v", id, inserted)
	}

	id, inserted, err = repo.InsertScan(context.Background(), scan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted || id != 0 {
		t.Errorf("expected the duplicate to be ignored, got id=%d inserted=%v", id, inserted)
	}
}

func TestScanRepository_FindScanMissing(t *testing.T) {
	database, mock := newMock(t)
	repo := NewScanRepository(database)

	mock.ExpectQuery(regexp.QuoteMeta("FROM biometric_attendances")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	scan, err := repo.FindScan(context.Background(), "tenant-a", 1, 5, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scan != nil {
		t.Errorf("expected nil for a missing scan, got %+v", scan)
	}
}

func TestScanRepository_Statistics(t *testing.T) {
	database, mock := newMock(t)
	repo := NewScanRepository(database)

	deviceID := int64(1)
	rows := sqlmock.NewRows([]string{"sync_status", "scan_type", "count"}).
		AddRow("synced", "check_in", 4).
		AddRow("failed", "check_in", 1).
		AddRow("synced", "check_out", 2)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY sync_status, scan_type")).
		WithArgs("tenant-a", deviceID).
		WillReturnRows(rows)

	stats, err := repo.Statistics(context.Background(), "tenant-a", model.StatsFilter{DeviceID: &deviceID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Total != 7 {
		t.Errorf("expected total 7, got %d", stats.Total)
	}
	if stats.BySyncStatus[model.SyncStatusSynced] != 6 || stats.BySyncStatus[model.SyncStatusFailed] != 1 {
		t.Errorf("unexpected status breakdown: %v", stats.BySyncStatus)
	}
	if count, ok := stats.BySyncStatus[model.SyncStatusPending]; !ok || count != 0 {
		t.Errorf("expected pending to be reported as 0, got %v", stats.BySyncStatus)
	}
	if stats.ByScanType[model.ScanTypeCheckOut] != 2 {
		t.Errorf("unexpected scan type breakdown: %v", stats.ByScanType)
	}
}

func TestDeviceRepository_CreateDuplicate(t *testing.T) {
	database, mock := newMock(t)
	repo := NewDeviceRepository(database)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO biometric_devices")).
		WillReturnError(&mysql.MySQLError{Number: mysqlErrDuplicateEntry, Message: "Duplicate entry"})

	_, err := repo.Create(context.Background(), &model.BiometricDevice{TenantID: "tenant-a", DeviceID: "ZK-001"})

	var dup apperrors.DuplicateDeviceError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateDeviceError, got %v", err)
	}
	if dup.DeviceID != "ZK-001" {
		t.Errorf("unexpected device id %q", dup.DeviceID)
	}
}

func TestDeviceRepository_GetByIDNotFound(t *testing.T) {
	database, mock := newMock(t)
	repo := NewDeviceRepository(database)

	mock.ExpectQuery(regexp.QuoteMeta("FROM biometric_devices WHERE tenant_id = ? AND id = ?")).
		WithArgs("tenant-a", int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "tenant-a", 9)

	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestDeviceRepository_UpdateStatusMissing(t *testing.T) {
	database, mock := newMock(t)
	repo := NewDeviceRepository(database)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE biometric_devices")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "tenant-a", 9, model.DeviceStatusError, nil, nil)

	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestEnrollmentRepository_FindByTemplate(t *testing.T) {
	database, mock := newMock(t)
	repo := NewEnrollmentRepository(database)

	enrolledAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "device_id", "student_id", "template_id", "metadata", "status", "enrolled_at", "deleted_at",
	}).AddRow(3, "tenant-a", 1, 5, "A1", []byte(`{"finger":"index"}`), "enrolled", enrolledAt, nil)
	mock.ExpectQuery(regexp.QuoteMeta("AND template_id = ? AND status = 'enrolled'")).
		WithArgs("tenant-a", int64(1), "A1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByTemplate(context.Background(), "tenant-a", 1, "A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enrollment == nil {
		t.Fatal("expected an enrollment")
	}
	if enrollment.StudentID != 5 || string(enrollment.Metadata) != `{"finger":"index"}` {
		t.Errorf("unexpected enrollment: %+v", enrollment)
	}
	if enrollment.DeletedAt != nil {
		t.Errorf("expected no deleted_at, got %v", enrollment.DeletedAt)
	}
}

func TestEnrollmentRepository_MarkDeletedMissing(t *testing.T) {
	database, mock := newMock(t)
	repo := NewEnrollmentRepository(database)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE biometric_enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDeleted(context.Background(), "tenant-a", 77, time.Now())

	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestAttendanceRepository_InsertIgnored(t *testing.T) {
	database, mock := newMock(t)
	repo := NewAttendanceRepository(database)

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO attendances")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Insert(context.Background(), &model.Attendance{TenantID: "tenant-a", StudentID: 5, ScheduleID: 11})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("expected an existing session row to win")
	}
}

func TestScanRepository_MarkScanFailedCountsAttempts(t *testing.T) {
	database, mock := newMock(t)
	repo := NewScanRepository(database)

	mock.ExpectExec(regexp.QuoteMeta("failed_attempts = failed_attempts + 1")).
		WithArgs("student not found", int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkScanFailed(context.Background(), 12, "student not found"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScanRepository_ListUnsyncedPrefersFewerAttempts(t *testing.T) {
	database, mock := newMock(t)
	repo := NewScanRepository(database)

	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY failed_attempts ASC, created_at ASC, id ASC")).
		WithArgs(after, before, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	scans, err := repo.ListUnsynced(context.Background(), after, before, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scans) != 0 {
		t.Errorf("expected no rows, got %d", len(scans))
	}
}

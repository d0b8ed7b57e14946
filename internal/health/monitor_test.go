package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"biometric-attendance-sync/internal/db/dbtest"
	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"
)

func newMonitor(t *testing.T) (*Monitor, *dbtest.Store, int64) {
	t.Helper()

	store := dbtest.NewStore()
	id, err := store.Devices.Create(context.Background(), &model.BiometricDevice{
		TenantID:   "tenant-a",
		DeviceID:   "ZK-001",
		Name:       "Gate",
		DeviceType: model.DeviceTypeFingerprint,
		Status:     model.DeviceStatusActive,
	})
	if err != nil {
		t.Fatalf("failed to seed device: %v", err)
	}

	monitor := NewMonitor(store.Devices, store.Scans)
	monitor.now = func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) }
	return monitor, store, id
}

func TestMonitor_RecordSyncOutcome_Transitions(t *testing.T) {
	monitor, store, id := newMonitor(t)
	ctx := context.Background()

	err := monitor.RecordSyncOutcome(ctx, "tenant-a", id, model.SyncOutcome{
		Success:      false,
		ErrorSummary: []string{"event 0 (template X): enrollment not found", "event 1 (template Y): enrollment not found"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	device, _ := store.Devices.GetByID(ctx, "tenant-a", id)
	if device.Status != model.DeviceStatusError {
		t.Errorf("expected error status, got %s", device.Status)
	}
	if device.LastError == nil || !strings.Contains(*device.LastError, "; event 1") {
		t.Errorf("expected joined error summary, got %v", device.LastError)
	}
	if device.LastSyncAt == nil {
		t.Error("expected last_sync_at to be stamped on failure")
	}

	if err := monitor.RecordSyncOutcome(ctx, "tenant-a", id, model.SyncOutcome{Success: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	device, _ = store.Devices.GetByID(ctx, "tenant-a", id)
	if device.Status != model.DeviceStatusActive {
		t.Errorf("expected recovery to active, got %s", device.Status)
	}
	if device.LastError != nil {
		t.Errorf("expected last_error cleared, got %q", *device.LastError)
	}
}

func TestMonitor_RecordSyncOutcome_TruncatesSummary(t *testing.T) {
	monitor, store, id := newMonitor(t)
	ctx := context.Background()

	long := strings.Repeat("é", 800)
	_ = monitor.RecordSyncOutcome(ctx, "tenant-a", id, model.SyncOutcome{ErrorSummary: []string{long}})

	device, _ := store.Devices.GetByID(ctx, "tenant-a", id)
	if device.LastError == nil {
		t.Fatal("expected last_error")
	}
	if len(*device.LastError) > maxLastErrorLength {
		t.Errorf("expected at most %d bytes, got %d", maxLastErrorLength, len(*device.LastError))
	}
	if !strings.HasPrefix(long, *device.LastError) {
		t.Error("truncation must keep whole characters")
	}
}

func TestMonitor_RecordSyncOutcome_KeepsInactive(t *testing.T) {
	monitor, store, id := newMonitor(t)
	ctx := context.Background()

	if _, err := monitor.SetStatus(ctx, "tenant-a", id, model.DeviceStatusInactive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = monitor.RecordSyncOutcome(ctx, "tenant-a", id, model.SyncOutcome{Success: true})

	device, _ := store.Devices.GetByID(ctx, "tenant-a", id)
	if device.Status != model.DeviceStatusInactive {
		t.Errorf("sync outcome must not reactivate a device, got %s", device.Status)
	}
}

func TestMonitor_SetStatus_RejectsUnknown(t *testing.T) {
	monitor, _, id := newMonitor(t)

	_, err := monitor.SetStatus(context.Background(), "tenant-a", id, model.DeviceStatus("broken"))

	var verr apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestMonitor_SetStatus_UnknownDevice(t *testing.T) {
	monitor, _, _ := newMonitor(t)

	_, err := monitor.SetStatus(context.Background(), "tenant-b", 1, model.DeviceStatusInactive)

	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError for another tenant's device, got %v", err)
	}
}

func TestMonitor_GetPendingSyncs(t *testing.T) {
	monitor, store, id := newMonitor(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-a", DeviceID: id, StudentID: 1, ScannedAt: base.Add(2 * time.Minute), SyncStatus: model.SyncStatusPending})
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-a", DeviceID: id, StudentID: 2, ScannedAt: base, SyncStatus: model.SyncStatusPending})
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-a", DeviceID: id, StudentID: 3, ScannedAt: base, SyncStatus: model.SyncStatusSynced})

	pending, err := monitor.GetPendingSyncs(ctx, "tenant-a", &id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(pending))
	}
	if pending[0].StudentID != 2 {
		t.Errorf("expected oldest first, got student %d", pending[0].StudentID)
	}
}

func TestMonitor_GetSyncStatistics(t *testing.T) {
	monitor, store, id := newMonitor(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-a", DeviceID: id, ScannedAt: base, ScanType: model.ScanTypeCheckIn, SyncStatus: model.SyncStatusSynced})
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-a", DeviceID: id, ScannedAt: base, ScanType: model.ScanTypeCheckOut, SyncStatus: model.SyncStatusFailed})
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-a", DeviceID: id, ScannedAt: base.AddDate(0, 0, 2), ScanType: model.ScanTypeCheckIn, SyncStatus: model.SyncStatusSynced})
	store.Scans.Put(model.BiometricAttendance{TenantID: "tenant-b", DeviceID: 9, ScannedAt: base, ScanType: model.ScanTypeCheckIn, SyncStatus: model.SyncStatusSynced})

	to := base.Add(24 * time.Hour)
	stats, err := monitor.GetSyncStatistics(ctx, "tenant-a", model.StatsFilter{To: &to})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Total != 2 {
		t.Errorf("expected 2 rows in range, got %d", stats.Total)
	}
	if stats.BySyncStatus[model.SyncStatusSynced] != 1 || stats.BySyncStatus[model.SyncStatusFailed] != 1 {
		t.Errorf("unexpected status breakdown: %v", stats.BySyncStatus)
	}
	if stats.BySyncStatus[model.SyncStatusPending] != 0 {
		t.Errorf("expected pending bucket present and zero, got %v", stats.BySyncStatus)
	}
	if stats.ByScanType[model.ScanTypeCheckOut] != 1 {
		t.Errorf("unexpected scan type breakdown: %v", stats.ByScanType)
	}
}

func TestMonitor_GetSyncStatistics_RejectsInvertedRange(t *testing.T) {
	monitor, _, _ := newMonitor(t)

	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err := monitor.GetSyncStatistics(context.Background(), "tenant-a", model.StatsFilter{From: &from, To: &to})

	var verr apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

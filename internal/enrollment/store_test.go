package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"biometric-attendance-sync/internal/db/dbtest"
	"biometric-attendance-sync/internal/device"
	"biometric-attendance-sync/internal/directory/directorytest"
	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"
)

type fixture struct {
	store    *Store
	db       *dbtest.Store
	dir      *directorytest.Static
	deviceID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.NewStore()
	dir := directorytest.New()
	dir.AddStudent(model.Student{ID: 5, Name: "Anong", StudentNumber: "S-0005", ClassID: 3})
	dir.AddStudent(model.Student{ID: 6, Name: "Boon", StudentNumber: "S-0006", ClassID: 3})

	registry := device.NewRegistry(db.Devices)
	d, err := registry.Register(context.Background(), "tenant-a", model.DeviceSpec{
		DeviceID:   "ZK-001",
		Name:       "Gate",
		DeviceType: model.DeviceTypeFingerprint,
	})
	if err != nil {
		t.Fatalf("failed to register device: %v", err)
	}

	store := NewStore(db.Enrollments, registry, dir)
	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	return &fixture{store: store, db: db, dir: dir, deviceID: d.ID}
}

func TestStore_Enroll_ReenrollUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.store.Enroll(ctx, "tenant-a", f.deviceID, 5, "A1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.store.Enroll(ctx, "tenant-a", f.deviceID, 5, "B7", json.RawMessage(`{"finger":"right_index"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected re-enroll to reuse row %d, got %d", first.ID, second.ID)
	}

	enrolled, _ := f.db.Enrollments.ListEnrolled(ctx, "tenant-a", f.deviceID)
	if len(enrolled) != 1 {
		t.Fatalf("expected exactly one enrolled row, got %d", len(enrolled))
	}
	if enrolled[0].TemplateID != "B7" {
		t.Errorf("expected latest template B7, got %s", enrolled[0].TemplateID)
	}
	if !enrolled[0].EnrolledAt.After(first.EnrolledAt) {
		t.Error("expected enrolled_at to be refreshed")
	}
}

func TestStore_Enroll_UnknownStudent(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Enroll(context.Background(), "tenant-a", f.deviceID, 404, "A1", nil)

	var nf apperrors.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != "student" {
		t.Errorf("expected student NotFoundError, got %v", err)
	}
	if len(f.db.Enrollments.All()) != 0 {
		t.Error("no enrollment must be written for an unknown student")
	}
}

func TestStore_Enroll_UnknownDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Enroll(context.Background(), "tenant-a", f.deviceID+100, 5, "A1", nil)

	var nf apperrors.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != "device" {
		t.Errorf("expected device NotFoundError, got %v", err)
	}
}

func TestStore_Enroll_RejectsInvalidMetadata(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Enroll(context.Background(), "tenant-a", f.deviceID, 5, "A1", json.RawMessage(`{broken`))

	var verr apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestStore_Unenroll_IsIdempotentAndKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enrollment, _ := f.store.Enroll(ctx, "tenant-a", f.deviceID, 5, "A1", nil)

	first, err := f.store.Unenroll(ctx, "tenant-a", enrollment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.store.Unenroll(ctx, "tenant-a", enrollment.ID)
	if err != nil {
		t.Fatalf("second unenroll must be a no-op, got %v", err)
	}

	if second.Status != model.EnrollmentStatusDeleted {
		t.Errorf("expected deleted status, got %s", second.Status)
	}
	if !second.DeletedAt.Equal(*first.DeletedAt) {
		t.Errorf("deleted_at must not move on a repeated unenroll: %v vs %v", first.DeletedAt, second.DeletedAt)
	}

	all := f.db.Enrollments.All()
	if len(all) != 1 {
		t.Errorf("soft delete must keep the row, got %d rows", len(all))
	}

	resolved, err := f.store.Resolve(ctx, "tenant-a", f.deviceID, "A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != nil {
		t.Error("deleted enrollment must not resolve")
	}
}

func TestStore_Unenroll_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Unenroll(context.Background(), "tenant-a", 999)

	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestStore_EnrollAfterUnenroll_CreatesNewRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, _ := f.store.Enroll(ctx, "tenant-a", f.deviceID, 5, "A1", nil)
	_, _ = f.store.Unenroll(ctx, "tenant-a", old.ID)

	fresh, err := f.store.Enroll(ctx, "tenant-a", f.deviceID, 5, "A2", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.ID == old.ID {
		t.Error("enrolling after unenroll must not revive the deleted row")
	}
	if len(f.db.Enrollments.All()) != 2 {
		t.Errorf("expected deleted history plus new row, got %d rows", len(f.db.Enrollments.All()))
	}
}

func TestStore_ListForDevice_JoinsStudentData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.store.Enroll(ctx, "tenant-a", f.deviceID, 5, "A1", nil)
	removed, _ := f.store.Enroll(ctx, "tenant-a", f.deviceID, 6, "A2", nil)
	_, _ = f.store.Unenroll(ctx, "tenant-a", removed.ID)

	views, err := f.store.ListForDevice(ctx, "tenant-a", f.deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected only enrolled rows, got %d", len(views))
	}
	if views[0].StudentName != "Anong" || views[0].StudentNumber != "S-0005" {
		t.Errorf("expected student display data, got %+v", views[0])
	}
}

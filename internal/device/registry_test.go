package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"biometric-attendance-sync/internal/db/dbtest"
	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"
)

func newTestRegistry() (*Registry, *dbtest.Store) {
	store := dbtest.NewStore()
	registry := NewRegistry(store.Devices)

	clock := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	registry.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return registry, store
}

func fingerprintSpec(deviceID string) model.DeviceSpec {
	return model.DeviceSpec{
		DeviceID:   deviceID,
		Name:       "Gate " + deviceID,
		DeviceType: model.DeviceTypeFingerprint,
		Location:   "Main entrance",
	}
}

func TestRegistry_Register_StartsActive(t *testing.T) {
	registry, _ := newTestRegistry()

	device, err := registry.Register(context.Background(), "tenant-a", fingerprintSpec("ZK-001"))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if device.ID == 0 {
		t.Error("expected registered device to get an id")
	}
	if device.Status != model.DeviceStatusActive {
		t.Errorf("expected status active, got %s", device.Status)
	}
}

func TestRegistry_Register_DuplicateWithinTenant(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	if _, err := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001"))

	var dup apperrors.DuplicateDeviceError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateDeviceError, got %v", err)
	}
	if dup.DeviceID != "ZK-001" {
		t.Errorf("expected duplicate device id ZK-001, got %q", dup.DeviceID)
	}
}

func TestRegistry_Register_SameDeviceIDOtherTenant(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	if _, err := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := registry.Register(ctx, "tenant-b", fingerprintSpec("ZK-001")); err != nil {
		t.Errorf("device ids are scoped per tenant, got %v", err)
	}
}

func TestRegistry_Register_RejectsUnknownType(t *testing.T) {
	registry, _ := newTestRegistry()
	spec := fingerprintSpec("ZK-001")
	spec.DeviceType = "retina"

	_, err := registry.Register(context.Background(), "tenant-a", spec)

	var verr apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "type" {
		t.Errorf("expected field type, got %s", verr.Field)
	}
}

func TestRegistry_Get_OtherTenantIsNotFound(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	device, err := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = registry.Get(ctx, "tenant-b", device.ID)
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestRegistry_List_NewestFirstAndActiveOnly(t *testing.T) {
	registry, store := newTestRegistry()
	ctx := context.Background()

	first, _ := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001"))
	second, _ := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-002"))
	third, _ := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-003"))

	if err := store.Devices.UpdateStatus(ctx, "tenant-a", second.ID, model.DeviceStatusInactive, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := registry.List(ctx, "tenant-a", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].ID != third.ID || all[2].ID != first.ID {
		t.Errorf("expected newest first, got %+v", all)
	}

	active, err := registry.List(ctx, "tenant-a", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active devices, got %d", len(active))
	}
	for _, d := range active {
		if d.ID == second.ID {
			t.Error("inactive device must not be listed with activeOnly")
		}
	}
}

func TestRegistry_Update_RenameToTakenDeviceID(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	_, _ = registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001"))
	second, _ := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-002"))

	taken := "ZK-001"
	_, err := registry.Update(ctx, "tenant-a", second.ID, model.DevicePatch{DeviceID: &taken})

	var dup apperrors.DuplicateDeviceError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateDeviceError, got %v", err)
	}
}

func TestRegistry_Update_KeepsStatus(t *testing.T) {
	registry, store := newTestRegistry()
	ctx := context.Background()

	device, _ := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001"))
	lastError := "timeout"
	_ = store.Devices.UpdateStatus(ctx, "tenant-a", device.ID, model.DeviceStatusError, nil, &lastError)

	name := "Library gate"
	updated, err := registry.Update(ctx, "tenant-a", device.ID, model.DevicePatch{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != name {
		t.Errorf("expected name %q, got %q", name, updated.Name)
	}
	if updated.Status != model.DeviceStatusError {
		t.Errorf("update must not touch status, got %s", updated.Status)
	}
}

func TestRegistry_Delete(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	device, _ := registry.Register(ctx, "tenant-a", fingerprintSpec("ZK-001"))

	if err := registry.Delete(ctx, "tenant-a", device.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := registry.Get(ctx, "tenant-a", device.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
	if err := registry.Delete(ctx, "tenant-a", device.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFoundError deleting twice, got %v", err)
	}
}

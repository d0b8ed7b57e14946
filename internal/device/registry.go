package device

import (
	"context"
	"strings"
	"time"

	"biometric-attendance-sync/internal/db"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"

	"github.com/rs/zerolog"
)

// Registry owns BiometricDevice records. It never changes a device's status;
// that belongs to the health monitor.
type Registry struct {
	repo db.DeviceRepository
	now  func() time.Time
	log  zerolog.Logger
}

func NewRegistry(repo db.DeviceRepository) *Registry {
	return &Registry{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logger.Get(),
	}
}

func (r *Registry) Register(ctx context.Context, tenantID string, spec model.DeviceSpec) (*model.BiometricDevice, error) {
	spec.DeviceID = strings.TrimSpace(spec.DeviceID)
	spec.Name = strings.TrimSpace(spec.Name)
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	exists, err := r.repo.ExistsByDeviceID(ctx, tenantID, spec.DeviceID, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.DuplicateDeviceError{TenantID: tenantID, DeviceID: spec.DeviceID}
	}

	now := r.now()
	device := &model.BiometricDevice{
		TenantID:   tenantID,
		DeviceID:   spec.DeviceID,
		Name:       spec.Name,
		DeviceType: spec.DeviceType,
		Location:   spec.Location,
		IPAddress:  spec.IPAddress,
		Port:       spec.Port,
		Config:     spec.Config,
		Status:     model.DeviceStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The unique key still catches a concurrent registration that slipped past the check.
	id, err := r.repo.Create(ctx, device)
	if err != nil {
		return nil, err
	}
	device.ID = id

	r.log.Info().
		Str("tenant_id", tenantID).
		Int64("id", id).
		Str("device_id", device.DeviceID).
		Str("type", string(device.DeviceType)).
		Msg("Device registered")

	return device, nil
}

func (r *Registry) Get(ctx context.Context, tenantID string, id int64) (*model.BiometricDevice, error) {
	return r.repo.GetByID(ctx, tenantID, id)
}

func (r *Registry) List(ctx context.Context, tenantID string, activeOnly bool) ([]model.BiometricDevice, error) {
	return r.repo.List(ctx, tenantID, activeOnly)
}

func (r *Registry) Update(ctx context.Context, tenantID string, id int64, patch model.DevicePatch) (*model.BiometricDevice, error) {
	device, err := r.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(device)
	device.DeviceID = strings.TrimSpace(device.DeviceID)
	device.Name = strings.TrimSpace(device.Name)
	if err := validateSpec(model.DeviceSpec{
		DeviceID:   device.DeviceID,
		Name:       device.Name,
		DeviceType: device.DeviceType,
		Port:       device.Port,
	}); err != nil {
		return nil, err
	}

	if patch.DeviceID != nil {
		exists, err := r.repo.ExistsByDeviceID(ctx, tenantID, device.DeviceID, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, errors.DuplicateDeviceError{TenantID: tenantID, DeviceID: device.DeviceID}
		}
	}

	device.UpdatedAt = r.now()
	if err := r.repo.Update(ctx, device); err != nil {
		return nil, err
	}

	return device, nil
}

// Delete hard-deletes the device. Audit rows that reference it are left in place.
func (r *Registry) Delete(ctx context.Context, tenantID string, id int64) error {
	if err := r.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	r.log.Info().Str("tenant_id", tenantID).Int64("id", id).Msg("Device deleted")
	return nil
}

func validateSpec(spec model.DeviceSpec) error {
	if spec.DeviceID == "" || len(spec.DeviceID) > 128 {
		return errors.ValidationError{Field: "deviceId", Value: spec.DeviceID, Message: "must be 1-128 characters"}
	}
	if spec.Name == "" || len(spec.Name) > 255 {
		return errors.ValidationError{Field: "name", Value: spec.Name, Message: "must be 1-255 characters"}
	}
	if !spec.DeviceType.Valid() {
		return errors.ValidationError{Field: "type", Value: spec.DeviceType, Message: "must be one of fingerprint, face, card, palm, other"}
	}
	if spec.Port < 0 || spec.Port > 65535 {
		return errors.ValidationError{Field: "port", Value: spec.Port, Message: "must be between 0 and 65535"}
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"biometric-attendance-sync/internal/model"
	apperrors "biometric-attendance-sync/pkg/errors"
)

type DeviceRepository interface {
	Create(ctx context.Context, device *model.BiometricDevice) (int64, error)
	GetByID(ctx context.Context, tenantID string, id int64) (*model.BiometricDevice, error)
	ExistsByDeviceID(ctx context.Context, tenantID, deviceID string, excludeID int64) (bool, error)
	List(ctx context.Context, tenantID string, activeOnly bool) ([]model.BiometricDevice, error)
	Update(ctx context.Context, device *model.BiometricDevice) error
	UpdateStatus(ctx context.Context, tenantID string, id int64, status model.DeviceStatus, lastSyncAt *time.Time, lastError *string) error
	Delete(ctx context.Context, tenantID string, id int64) error
}

type deviceRepository struct {
	db *sql.DB
}

func NewDeviceRepository(db *sql.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

const deviceColumns = `id, tenant_id, device_id, name, device_type, location, ip_address, port, config,
	status, last_sync_at, last_error, created_at, updated_at`

func (r *deviceRepository) Create(ctx context.Context, device *model.BiometricDevice) (int64, error) {
	query := `INSERT INTO biometric_devices
		(tenant_id, device_id, name, device_type, location, ip_address, port, config, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, device.TenantID, device.DeviceID, device.Name, device.DeviceType,
		device.Location, device.IPAddress, device.Port, nullableJSON(device.Config), device.Status,
		device.CreatedAt, device.UpdatedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, apperrors.DuplicateDeviceError{TenantID: device.TenantID, DeviceID: device.DeviceID}
		}
		return 0, err
	}

	return res.LastInsertId()
}

func (r *deviceRepository) GetByID(ctx context.Context, tenantID string, id int64) (*model.BiometricDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM biometric_devices WHERE tenant_id = ? AND id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("device", id)
		}
		return nil, err
	}

	return device, nil
}

func (r *deviceRepository) ExistsByDeviceID(ctx context.Context, tenantID, deviceID string, excludeID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM biometric_devices WHERE tenant_id = ? AND device_id = ? AND id <> ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, tenantID, deviceID, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *deviceRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]model.BiometricDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM biometric_devices WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if activeOnly {
		query += ` AND status = ?`
		args = append(args, model.DeviceStatusActive)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []model.BiometricDevice{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}

	return devices, rows.Err()
}

func (r *deviceRepository) Update(ctx context.Context, device *model.BiometricDevice) error {
	query := `UPDATE biometric_devices
		SET device_id = ?, name = ?, device_type = ?, location = ?, ip_address = ?, port = ?, config = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`

	res, err := r.db.ExecContext(ctx, query, device.DeviceID, device.Name, device.DeviceType, device.Location,
		device.IPAddress, device.Port, nullableJSON(device.Config), device.UpdatedAt, device.TenantID, device.ID)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperrors.DuplicateDeviceError{TenantID: device.TenantID, DeviceID: device.DeviceID}
		}
		return err
	}

	return requireAffected(res, "device", device.ID)
}

func (r *deviceRepository) UpdateStatus(ctx context.Context, tenantID string, id int64, status model.DeviceStatus, lastSyncAt *time.Time, lastError *string) error {
	query := `UPDATE biometric_devices
		SET status = ?, last_sync_at = COALESCE(?, last_sync_at), last_error = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`

	res, err := r.db.ExecContext(ctx, query, status, lastSyncAt, lastError, time.Now().UTC(), tenantID, id)
	if err != nil {
		return err
	}

	return requireAffected(res, "device", id)
}

func (r *deviceRepository) Delete(ctx context.Context, tenantID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM biometric_devices WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}

	return requireAffected(res, "device", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*model.BiometricDevice, error) {
	var (
		device model.BiometricDevice
		config []byte
	)
	err := row.Scan(&device.ID, &device.TenantID, &device.DeviceID, &device.Name, &device.DeviceType,
		&device.Location, &device.IPAddress, &device.Port, &config, &device.Status,
		&device.LastSyncAt, &device.LastError, &device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(config) > 0 {
		device.Config = config
	}
	return &device, nil
}

// requireAffected turns a zero-row UPDATE/DELETE into a NotFoundError. The DSN
// sets clientFoundRows so an UPDATE that matches but changes nothing still counts.
func requireAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError(resource, id)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"biometric-attendance-sync/pkg/errors"

	"github.com/google/uuid"
)

// Storage holds uploaded device log exports until the import worker has
// processed them.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ImportKey names the object for one uploaded export. Keys are grouped by
// tenant, device and upload day so a bucket listing stays navigable.
func ImportKey(prefix, tenantID string, deviceID int64, uploadedAt time.Time) string {
	name := fmt.Sprintf("%s.xlsx", uuid.NewString())
	return path.Join(prefix, "imports", tenantID, fmt.Sprintf("%d", deviceID), uploadedAt.UTC().Format("2006/01/02"), name)
}

// ImportOwner is the tenant and device an export key was issued for.
type ImportOwner struct {
	TenantID string
	DeviceID int64
}

// ParseImportKey reads the owner back out of a key built by ImportKey.
func ParseImportKey(prefix, key string) (ImportOwner, error) {
	invalid := errors.ValidationError{Field: "s3_path", Value: key, Message: "not an import export key"}

	if key == "" || path.Clean(key) != key || path.Ext(key) != ".xlsx" {
		return ImportOwner{}, invalid
	}

	root := path.Join(prefix, "imports") + "/"
	if !strings.HasPrefix(key, root) {
		return ImportOwner{}, invalid
	}

	// tenant/device/yyyy/mm/dd/file
	parts := strings.Split(strings.TrimPrefix(key, root), "/")
	if len(parts) != 6 || parts[0] == "" {
		return ImportOwner{}, invalid
	}
	deviceID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || deviceID <= 0 {
		return ImportOwner{}, invalid
	}
	return ImportOwner{TenantID: parts[0], DeviceID: deviceID}, nil
}

// CheckImportKey rejects keys issued for another tenant or device.
func CheckImportKey(prefix, key, tenantID string, deviceID int64) error {
	owner, err := ParseImportKey(prefix, key)
	if err != nil {
		return err
	}
	if owner.TenantID != tenantID || owner.DeviceID != deviceID {
		return errors.ValidationError{
			Field:   "s3_path",
			Value:   key,
			Message: fmt.Sprintf("export belongs to tenant '%s' device %d", owner.TenantID, owner.DeviceID),
		}
	}
	return nil
}

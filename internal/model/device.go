package model

import (
	"encoding/json"
	"time"
)

type DeviceStatus string

const (
	DeviceStatusActive   DeviceStatus = "active"
	DeviceStatusError    DeviceStatus = "error"
	DeviceStatusInactive DeviceStatus = "inactive"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusActive, DeviceStatusError, DeviceStatusInactive:
		return true
	}
	return false
}

type DeviceType string

const (
	DeviceTypeFingerprint DeviceType = "fingerprint"
	DeviceTypeFace        DeviceType = "face"
	DeviceTypeCard        DeviceType = "card"
	DeviceTypePalm        DeviceType = "palm"
	DeviceTypeOther       DeviceType = "other"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeFingerprint, DeviceTypeFace, DeviceTypeCard, DeviceTypePalm, DeviceTypeOther:
		return true
	}
	return false
}

// BiometricDevice is a scanning endpoint registered by a tenant. DeviceID is
// the vendor serial and is unique per tenant; ID is the row id used by the API.
type BiometricDevice struct {
	ID         int64           `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	DeviceID   string          `json:"device_id" db:"device_id"`
	Name       string          `json:"name" db:"name"`
	DeviceType DeviceType      `json:"device_type" db:"device_type"`
	Location   string          `json:"location,omitempty" db:"location"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	Port       int             `json:"port,omitempty" db:"port"`
	Config     json.RawMessage `json:"config,omitempty" db:"config"`
	Status     DeviceStatus    `json:"status" db:"status"`
	LastSyncAt *time.Time      `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastError  *string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// DeviceSpec is the registration payload.
type DeviceSpec struct {
	DeviceID   string          `json:"deviceId" binding:"required"`
	Name       string          `json:"name" binding:"required"`
	DeviceType DeviceType      `json:"type" binding:"required"`
	Location   string          `json:"location"`
	IPAddress  string          `json:"ipAddress"`
	Port       int             `json:"port"`
	Config     json.RawMessage `json:"config"`
}

// DevicePatch carries the admin-editable fields. Status is deliberately absent;
// it only changes through the health monitor.
type DevicePatch struct {
	DeviceID   *string          `json:"deviceId"`
	Name       *string          `json:"name"`
	DeviceType *DeviceType      `json:"type"`
	Location   *string          `json:"location"`
	IPAddress  *string          `json:"ipAddress"`
	Port       *int             `json:"port"`
	Config     *json.RawMessage `json:"config"`
}

// Apply copies the set fields of p onto d.
func (p DevicePatch) Apply(d *BiometricDevice) {
	if p.DeviceID != nil {
		d.DeviceID = *p.DeviceID
	}
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.DeviceType != nil {
		d.DeviceType = *p.DeviceType
	}
	if p.Location != nil {
		d.Location = *p.Location
	}
	if p.IPAddress != nil {
		d.IPAddress = *p.IPAddress
	}
	if p.Port != nil {
		d.Port = *p.Port
	}
	if p.Config != nil {
		d.Config = *p.Config
	}
}

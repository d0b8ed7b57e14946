package health

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"biometric-attendance-sync/internal/db"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"

	"github.com/rs/zerolog"
)

const (
	maxLastErrorLength  = 1000
	defaultPendingLimit = 100
)

// Monitor is the only writer of device status. Status set from sync outcomes
// is advisory: an error device still accepts scans.
type Monitor struct {
	devices db.DeviceRepository
	scans   db.ScanRepository
	now     func() time.Time
	log     zerolog.Logger
}

func NewMonitor(devices db.DeviceRepository, scans db.ScanRepository) *Monitor {
	return &Monitor{
		devices: devices,
		scans:   scans,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.Get(),
	}
}

// RecordSyncOutcome moves the device to active or error after a batch.
// An inactive device stays inactive.
func (m *Monitor) RecordSyncOutcome(ctx context.Context, tenantID string, deviceID int64, outcome model.SyncOutcome) error {
	device, err := m.devices.GetByID(ctx, tenantID, deviceID)
	if err != nil {
		return err
	}

	syncedAt := m.now()
	log := logger.ForDevice(m.log, tenantID, deviceID)

	if device.Status == model.DeviceStatusInactive {
		return m.devices.UpdateStatus(ctx, tenantID, deviceID, model.DeviceStatusInactive, &syncedAt, device.LastError)
	}

	if outcome.Success {
		if device.Status != model.DeviceStatusActive {
			log.Info().Str("previous", string(device.Status)).Msg("Device recovered")
		}
		return m.devices.UpdateStatus(ctx, tenantID, deviceID, model.DeviceStatusActive, &syncedAt, nil)
	}

	lastError := summarize(outcome.ErrorSummary)
	log.Warn().Int("errors", len(outcome.ErrorSummary)).Msg("Device sync reported errors")
	return m.devices.UpdateStatus(ctx, tenantID, deviceID, model.DeviceStatusError, &syncedAt, &lastError)
}

// SetStatus is the explicit admin transition, e.g. to take a device out of
// service.
func (m *Monitor) SetStatus(ctx context.Context, tenantID string, deviceID int64, status model.DeviceStatus) (*model.BiometricDevice, error) {
	if !status.Valid() {
		return nil, errors.ValidationError{Field: "status", Value: string(status), Message: "must be active, inactive or error"}
	}

	device, err := m.devices.GetByID(ctx, tenantID, deviceID)
	if err != nil {
		return nil, err
	}

	lastError := device.LastError
	if status == model.DeviceStatusActive {
		lastError = nil
	}
	if err := m.devices.UpdateStatus(ctx, tenantID, deviceID, status, nil, lastError); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("tenant_id", tenantID).
		Int64("device_id", deviceID).
		Str("from", string(device.Status)).
		Str("to", string(status)).
		Msg("Device status changed")

	device.Status = status
	device.LastError = lastError
	return device, nil
}

// GetPendingSyncs lists audit rows still waiting for canonical derivation,
// oldest first. deviceID narrows to one device.
func (m *Monitor) GetPendingSyncs(ctx context.Context, tenantID string, deviceID *int64, limit int) ([]model.BiometricAttendance, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if deviceID != nil {
		if _, err := m.devices.GetByID(ctx, tenantID, *deviceID); err != nil {
			return nil, err
		}
	}
	return m.scans.ListPending(ctx, tenantID, deviceID, limit)
}

func (m *Monitor) GetSyncStatistics(ctx context.Context, tenantID string, filter model.StatsFilter) (*model.SyncStatistics, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, errors.ValidationError{Field: "to", Value: filter.To.Format(time.RFC3339), Message: "must not be before from"}
	}
	return m.scans.Statistics(ctx, tenantID, filter)
}

func summarize(errs []string) string {
	summary := strings.Join(errs, "; ")
	if summary == "" {
		summary = "sync failed"
	}
	if len(summary) > maxLastErrorLength {
		summary = truncate(summary, maxLastErrorLength)
	}
	return summary
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Package dbtest provides in-memory implementations of the db repositories
// that honour the same unique keys as the MySQL schema.
package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"
)

type Store struct {
	Devices     *Devices
	Enrollments *Enrollments
	Scans       *Scans
	Attendances *Attendances
}

func NewStore() *Store {
	return &Store{
		Devices:     &Devices{rows: map[int64]model.BiometricDevice{}},
		Enrollments: &Enrollments{rows: map[int64]model.BiometricEnrollment{}},
		Scans:       &Scans{rows: map[int64]model.BiometricAttendance{}},
		Attendances: &Attendances{rows: map[int64]model.Attendance{}},
	}
}

type Devices struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.BiometricDevice
}

func (d *Devices) Create(ctx context.Context, device *model.BiometricDevice) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, row := range d.rows {
		if row.TenantID == device.TenantID && row.DeviceID == device.DeviceID {
			return 0, errors.DuplicateDeviceError{TenantID: device.TenantID, DeviceID: device.DeviceID}
		}
	}
	d.nextID++
	row := *device
	row.ID = d.nextID
	d.rows[row.ID] = row
	return row.ID, nil
}

func (d *Devices) GetByID(ctx context.Context, tenantID string, id int64) (*model.BiometricDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, errors.NewNotFoundError("device", id)
	}
	return &row, nil
}

func (d *Devices) ExistsByDeviceID(ctx context.Context, tenantID, deviceID string, excludeID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, row := range d.rows {
		if row.TenantID == tenantID && row.DeviceID == deviceID && row.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (d *Devices) List(ctx context.Context, tenantID string, activeOnly bool) ([]model.BiometricDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	devices := []model.BiometricDevice{}
	for _, row := range d.rows {
		if row.TenantID != tenantID {
			continue
		}
		if activeOnly && row.Status != model.DeviceStatusActive {
			continue
		}
		devices = append(devices, row)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].CreatedAt.Equal(devices[j].CreatedAt) {
			return devices[i].ID > devices[j].ID
		}
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})
	return devices, nil
}

func (d *Devices) Update(ctx context.Context, device *model.BiometricDevice) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[device.ID]
	if !ok || row.TenantID != device.TenantID {
		return errors.NewNotFoundError("device", device.ID)
	}
	for _, other := range d.rows {
		if other.ID != device.ID && other.TenantID == device.TenantID && other.DeviceID == device.DeviceID {
			return errors.DuplicateDeviceError{TenantID: device.TenantID, DeviceID: device.DeviceID}
		}
	}
	row.DeviceID = device.DeviceID
	row.Name = device.Name
	row.DeviceType = device.DeviceType
	row.Location = device.Location
	row.IPAddress = device.IPAddress
	row.Port = device.Port
	row.Config = device.Config
	row.UpdatedAt = device.UpdatedAt
	d.rows[row.ID] = row
	return nil
}

func (d *Devices) UpdateStatus(ctx context.Context, tenantID string, id int64, status model.DeviceStatus, lastSyncAt *time.Time, lastError *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[id]
	if !ok || row.TenantID != tenantID {
		return errors.NewNotFoundError("device", id)
	}
	row.Status = status
	if lastSyncAt != nil {
		row.LastSyncAt = lastSyncAt
	}
	row.LastError = lastError
	d.rows[id] = row
	return nil
}

func (d *Devices) Delete(ctx context.Context, tenantID string, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[id]
	if !ok || row.TenantID != tenantID {
		return errors.NewNotFoundError("device", id)
	}
	delete(d.rows, id)
	return nil
}

type Enrollments struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.BiometricEnrollment
}

func (e *Enrollments) Upsert(ctx context.Context, enrollment *model.BiometricEnrollment) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, row := range e.rows {
		if row.TenantID == enrollment.TenantID && row.DeviceID == enrollment.DeviceID &&
			row.StudentID == enrollment.StudentID && row.Status == model.EnrollmentStatusEnrolled {
			row.TemplateID = enrollment.TemplateID
			row.Metadata = enrollment.Metadata
			row.EnrolledAt = enrollment.EnrolledAt
			e.rows[id] = row
			return id, nil
		}
	}
	e.nextID++
	row := *enrollment
	row.ID = e.nextID
	row.Status = model.EnrollmentStatusEnrolled
	e.rows[row.ID] = row
	return row.ID, nil
}

func (e *Enrollments) GetByID(ctx context.Context, tenantID string, id int64) (*model.BiometricEnrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, ok := e.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, errors.NewNotFoundError("enrollment", id)
	}
	return &row, nil
}

func (e *Enrollments) ListEnrolled(ctx context.Context, tenantID string, deviceID int64) ([]model.BiometricEnrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	enrollments := []model.BiometricEnrollment{}
	for _, row := range e.rows {
		if row.TenantID == tenantID && row.DeviceID == deviceID && row.Status == model.EnrollmentStatusEnrolled {
			enrollments = append(enrollments, row)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].ID > enrollments[j].ID })
	return enrollments, nil
}

func (e *Enrollments) MarkDeleted(ctx context.Context, tenantID string, id int64, deletedAt time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, ok := e.rows[id]
	if !ok || row.TenantID != tenantID {
		return errors.NewNotFoundError("enrollment", id)
	}
	row.Status = model.EnrollmentStatusDeleted
	if row.DeletedAt == nil {
		row.DeletedAt = &deletedAt
	}
	e.rows[id] = row
	return nil
}

func (e *Enrollments) FindByTemplate(ctx context.Context, tenantID string, deviceID int64, templateID string) (*model.BiometricEnrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var found *model.BiometricEnrollment
	for _, row := range e.rows {
		if row.TenantID == tenantID && row.DeviceID == deviceID && row.TemplateID == templateID &&
			row.Status == model.EnrollmentStatusEnrolled {
			if found == nil || row.EnrolledAt.After(found.EnrolledAt) {
				r := row
				found = &r
			}
		}
	}
	return found, nil
}

// All returns every enrollment row, deleted ones included.
func (e *Enrollments) All() []model.BiometricEnrollment {
	e.mu.Lock()
	defer e.mu.Unlock()

	all := make([]model.BiometricEnrollment, 0, len(e.rows))
	for _, row := range e.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

type Scans struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.BiometricAttendance

	// FailMarkSynced makes MarkScanSynced return this error when set.
	FailMarkSynced error
}

func (s *Scans) FindScan(ctx context.Context, tenantID string, deviceID, studentID int64, scannedAt time.Time) (*model.BiometricAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if row.TenantID == tenantID && row.DeviceID == deviceID && row.StudentID == studentID && row.ScannedAt.Equal(scannedAt) {
			r := row
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Scans) InsertScan(ctx context.Context, scan *model.BiometricAttendance) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if row.TenantID == scan.TenantID && row.DeviceID == scan.DeviceID && row.StudentID == scan.StudentID &&
			row.ScannedAt.Equal(scan.ScannedAt) {
			return 0, false, nil
		}
	}
	s.nextID++
	row := *scan
	row.ID = s.nextID
	s.rows[row.ID] = row
	return row.ID, true, nil
}

func (s *Scans) MarkScanSynced(ctx context.Context, id int64, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailMarkSynced != nil {
		return s.FailMarkSynced
	}
	row := s.rows[id]
	row.SyncStatus = model.SyncStatusSynced
	row.SyncedAt = &syncedAt
	row.SyncError = nil
	s.rows[id] = row
	return nil
}

func (s *Scans) MarkScanFailed(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.rows[id]
	row.SyncStatus = model.SyncStatusFailed
	row.SyncError = &reason
	row.FailedAttempts++
	s.rows[id] = row
	return nil
}

func (s *Scans) ListPending(ctx context.Context, tenantID string, deviceID *int64, limit int) ([]model.BiometricAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scans := []model.BiometricAttendance{}
	for _, row := range s.rows {
		if row.TenantID != tenantID || row.SyncStatus != model.SyncStatusPending {
			continue
		}
		if deviceID != nil && row.DeviceID != *deviceID {
			continue
		}
		scans = append(scans, row)
	}
	sort.Slice(scans, func(i, j int) bool { return scans[i].ScannedAt.Before(scans[j].ScannedAt) })
	if len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func (s *Scans) ListUnsynced(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]model.BiometricAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scans := []model.BiometricAttendance{}
	for _, row := range s.rows {
		if row.SyncStatus == model.SyncStatusSynced {
			continue
		}
		if !row.CreatedAt.After(createdAfter) || !row.CreatedAt.Before(createdBefore) {
			continue
		}
		scans = append(scans, row)
	}
	sort.Slice(scans, func(i, j int) bool {
		if scans[i].FailedAttempts != scans[j].FailedAttempts {
			return scans[i].FailedAttempts < scans[j].FailedAttempts
		}
		if scans[i].CreatedAt.Equal(scans[j].CreatedAt) {
			return scans[i].ID < scans[j].ID
		}
		return scans[i].CreatedAt.Before(scans[j].CreatedAt)
	})
	if len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func (s *Scans) Statistics(ctx context.Context, tenantID string, filter model.StatsFilter) (*model.SyncStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &model.SyncStatistics{
		BySyncStatus: map[model.SyncStatus]int{
			model.SyncStatusPending: 0,
			model.SyncStatusSynced:  0,
			model.SyncStatusFailed:  0,
		},
		ByScanType: map[model.ScanType]int{},
		DeviceID:   filter.DeviceID,
		From:       filter.From,
		To:         filter.To,
	}
	for _, row := range s.rows {
		if row.TenantID != tenantID {
			continue
		}
		if filter.DeviceID != nil && row.DeviceID != *filter.DeviceID {
			continue
		}
		if filter.From != nil && row.ScannedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && row.ScannedAt.After(*filter.To) {
			continue
		}
		stats.Total++
		stats.BySyncStatus[row.SyncStatus]++
		stats.ByScanType[row.ScanType]++
	}
	return stats, nil
}

// Put stores a row as-is, for seeding tests.
func (s *Scans) Put(scan model.BiometricAttendance) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	scan.ID = s.nextID
	s.rows[scan.ID] = scan
	return scan.ID
}

func (s *Scans) All() []model.BiometricAttendance {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]model.BiometricAttendance, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

type Attendances struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.Attendance
}

func (a *Attendances) FindExisting(ctx context.Context, tenantID string, studentID, scheduleID int64, date string) (*model.Attendance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, row := range a.rows {
		if row.TenantID == tenantID && row.StudentID == studentID && row.ScheduleID == scheduleID && row.AttendanceDate == date {
			r := row
			return &r, nil
		}
	}
	return nil, nil
}

func (a *Attendances) Insert(ctx context.Context, record *model.Attendance) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, row := range a.rows {
		if row.TenantID == record.TenantID && row.StudentID == record.StudentID &&
			row.ScheduleID == record.ScheduleID && row.AttendanceDate == record.AttendanceDate {
			return false, nil
		}
	}
	a.nextID++
	record.ID = a.nextID
	a.rows[record.ID] = *record
	return true, nil
}

func (a *Attendances) All() []model.Attendance {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]model.Attendance, 0, len(a.rows))
	for _, row := range a.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

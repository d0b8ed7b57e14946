package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/db"
	"biometric-attendance-sync/internal/directory"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/internal/schedule"
	"biometric-attendance-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type DeviceGetter interface {
	Get(ctx context.Context, tenantID string, id int64) (*model.BiometricDevice, error)
}

type EnrollmentResolver interface {
	Resolve(ctx context.Context, tenantID string, deviceID int64, templateID string) (*model.BiometricEnrollment, error)
}

type OutcomeRecorder interface {
	RecordSyncOutcome(ctx context.Context, tenantID string, deviceID int64, outcome model.SyncOutcome) error
}

// Dependencies are the collaborators an Engine is wired with.
type Dependencies struct {
	Devices     DeviceGetter
	Enrollments EnrollmentResolver
	Scans       db.ScanRepository
	Attendances db.AttendanceRepository
	Students    directory.StudentLookup
	Schedules   directory.ScheduleLookup
	Health      OutcomeRecorder
}

// Engine turns raw device scans into audit rows and canonical attendance.
// Same-key writes are serialized by the datastore's unique keys, so batches
// from any number of callers can run concurrently.
type Engine struct {
	devices     DeviceGetter
	enrollments EnrollmentResolver
	scans       db.ScanRepository
	attendances db.AttendanceRepository
	students    directory.StudentLookup
	matcher     *schedule.Matcher
	health      OutcomeRecorder
	location    *time.Location
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

func NewEngine(cfg *config.Config, deps Dependencies) *Engine {
	concurrency := cfg.Workers.Sync.EventConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		devices:     deps.Devices,
		enrollments: deps.Enrollments,
		scans:       deps.Scans,
		attendances: deps.Attendances,
		students:    deps.Students,
		matcher:     schedule.NewMatcherFromConfig(deps.Schedules, cfg),
		health:      deps.Health,
		location:    cfg.Location(),
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.Get(),
	}
}

type eventStatus int

const (
	eventFailed eventStatus = iota
	eventSynced
	eventSkipped
)

type eventOutcome struct {
	status eventStatus
	err    error
}

// IngestBatch applies a batch of scans from one device and records the
// outcome on the device. Only structural problems (unknown or inactive
// device) fail the call; every per-event problem is reported in the result,
// so a caller may resubmit the whole batch safely.
func (e *Engine) IngestBatch(ctx context.Context, tenantID string, deviceID int64, events []model.RawScanEvent) (*model.SyncResult, error) {
	result, err := e.ApplyBatch(ctx, tenantID, deviceID, events)
	if err != nil {
		return nil, err
	}

	e.RecordOutcome(ctx, tenantID, deviceID, result)
	return result, nil
}

// ApplyBatch is IngestBatch without the device health update, for callers
// that split one device upload into several batches.
func (e *Engine) ApplyBatch(ctx context.Context, tenantID string, deviceID int64, events []model.RawScanEvent) (*model.SyncResult, error) {
	device, err := e.devices.Get(ctx, tenantID, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status == model.DeviceStatusInactive {
		return nil, fmt.Errorf("%w: device %d", errors.ErrDeviceInactive, deviceID)
	}

	log := logger.ForDevice(e.log, tenantID, deviceID)
	log.Info().Int("events", len(events)).Msg("Ingesting scan batch")
	start := time.Now()

	outcomes := e.processEvents(ctx, device, events)

	result := &model.SyncResult{Errors: []string{}}
	for i, outcome := range outcomes {
		switch outcome.status {
		case eventSynced:
			result.Synced++
		case eventSkipped:
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("event %d (template %q): %v", i, events[i].TemplateID, outcome.err))
		}
	}

	log.Info().
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Scan batch ingested")

	return result, nil
}

// RecordOutcome moves the device to active or error from a finished result.
// The batch already happened, so a failed status update is only logged.
func (e *Engine) RecordOutcome(ctx context.Context, tenantID string, deviceID int64, result *model.SyncResult) {
	err := e.health.RecordSyncOutcome(context.WithoutCancel(ctx), tenantID, deviceID, model.SyncOutcome{
		Success:      result.Failed == 0,
		ErrorSummary: result.Errors,
	})
	if err != nil {
		log := logger.ForDevice(e.log, tenantID, deviceID)
		log.Error().Err(err).Msg("Failed to record sync outcome")
	}
}

// processEvents returns one outcome per event, in input order. Events that
// share a template belong to one student and run one after another in input
// order, so the first listed scan claims the session. Distinct templates run
// concurrently, bounded by e.concurrency. Once ctx is done no further events
// start.
func (e *Engine) processEvents(ctx context.Context, device *model.BiometricDevice, events []model.RawScanEvent) []eventOutcome {
	outcomes := make([]eventOutcome, len(events))
	duplicate := repeatedInBatch(events, e.location)
	for i := range events {
		if duplicate[i] {
			outcomes[i] = eventOutcome{status: eventSkipped}
		}
	}

	notAttempted := func(indexes []int, err error) {
		for _, i := range indexes {
			outcomes[i] = eventOutcome{status: eventFailed, err: fmt.Errorf("not attempted: %w", err)}
		}
	}

	lanes := lanesByTemplate(events, duplicate)
	sem := make(chan struct{}, e.concurrency)
	var wg gosync.WaitGroup

	for n, lane := range lanes {
		if err := acquire(ctx, sem); err != nil {
			for _, rest := range lanes[n:] {
				notAttempted(rest, err)
			}
			break
		}

		wg.Add(1)
		go func(lane []int) {
			defer wg.Done()
			defer func() { <-sem }()
			for k, i := range lane {
				if err := ctx.Err(); err != nil {
					notAttempted(lane[k:], err)
					return
				}
				outcomes[i] = e.ingestEvent(ctx, device, events[i])
			}
		}(lane)
	}

	wg.Wait()
	return outcomes
}

// lanesByTemplate groups event indexes by trimmed template id, keeping input
// order inside each lane and ordering lanes by first appearance. Repeats are
// left out. Events without a template get a lane each.
func lanesByTemplate(events []model.RawScanEvent, duplicate []bool) [][]int {
	var lanes [][]int
	byTemplate := make(map[string]int, len(events))

	for i, event := range events {
		if duplicate[i] {
			continue
		}
		templateID := strings.TrimSpace(event.TemplateID)
		if templateID == "" {
			lanes = append(lanes, []int{i})
			continue
		}
		n, ok := byTemplate[templateID]
		if !ok {
			n = len(lanes)
			byTemplate[templateID] = n
			lanes = append(lanes, nil)
		}
		lanes[n] = append(lanes[n], i)
	}
	return lanes
}

// repeatedInBatch flags events that repeat an earlier event of the same batch.
// A template resolves to one student per device, so equal template and
// instant means equal dedup key. Handling them up front keeps a repeat from
// picking up its twin's pending row mid-flight.
func repeatedInBatch(events []model.RawScanEvent, loc *time.Location) []bool {
	type key struct {
		templateID string
		at         time.Time
	}

	duplicate := make([]bool, len(events))
	seen := make(map[key]struct{}, len(events))
	for i, event := range events {
		at, err := ParseTimestamp(event.Timestamp, loc)
		if err != nil {
			continue
		}
		templateID := strings.TrimSpace(event.TemplateID)
		if templateID == "" {
			continue
		}
		k := key{templateID: templateID, at: at}
		if _, ok := seen[k]; ok {
			duplicate[i] = true
			continue
		}
		seen[k] = struct{}{}
	}
	return duplicate
}

func acquire(ctx context.Context, sem chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) ingestEvent(ctx context.Context, device *model.BiometricDevice, event model.RawScanEvent) eventOutcome {
	templateID := strings.TrimSpace(event.TemplateID)
	if templateID == "" {
		return failed(errors.ValidationError{Field: "templateId", Value: event.TemplateID, Message: "is required"})
	}

	enrollment, err := e.enrollments.Resolve(ctx, device.TenantID, device.ID, templateID)
	if err != nil {
		return failed(fmt.Errorf("failed to resolve enrollment: %w", err))
	}
	if enrollment == nil {
		return failed(errors.ErrEnrollmentNotFound)
	}

	scannedAt, err := ParseTimestamp(event.Timestamp, e.location)
	if err != nil {
		return failed(err)
	}
	local := scannedAt.In(e.location)

	existing, err := e.scans.FindScan(ctx, device.TenantID, device.ID, enrollment.StudentID, scannedAt)
	if err != nil {
		return failed(fmt.Errorf("failed to check for duplicate scan: %w", err))
	}
	if existing != nil {
		if existing.SyncStatus == model.SyncStatusSynced {
			return eventOutcome{status: eventSkipped}
		}
		// An earlier attempt stopped before or during derivation.
		return e.finish(ctx, device, existing)
	}

	scan := &model.BiometricAttendance{
		TenantID:   device.TenantID,
		DeviceID:   device.ID,
		StudentID:  enrollment.StudentID,
		TemplateID: templateID,
		ScanType:   model.NormalizeScanType(strings.ToLower(strings.TrimSpace(event.Type))),
		ScannedAt:  scannedAt,
		ScanDate:   local.Format("2006-01-02"),
		ScanTime:   local.Format("15:04:05"),
		RawData:    event.RawData,
		SyncStatus: model.SyncStatusPending,
		CreatedAt:  e.now(),
	}

	id, inserted, err := e.scans.InsertScan(ctx, scan)
	if err != nil {
		return failed(fmt.Errorf("failed to store scan: %w", err))
	}
	if !inserted {
		return eventOutcome{status: eventSkipped}
	}
	scan.ID = id

	return e.finish(ctx, device, scan)
}

// finish derives canonical attendance for a stored scan and records the
// result on the audit row.
func (e *Engine) finish(ctx context.Context, device *model.BiometricDevice, scan *model.BiometricAttendance) eventOutcome {
	log := logger.ForDevice(e.log, device.TenantID, device.ID).With().
		Int64("scan_id", scan.ID).
		Int64("student_id", scan.StudentID).
		Logger()

	if err := e.deriveAttendance(ctx, device, scan); err != nil {
		log.Error().Err(err).Msg("Failed to derive attendance")
		if markErr := e.scans.MarkScanFailed(context.WithoutCancel(ctx), scan.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to mark scan failed")
		}
		return failed(err)
	}

	if err := e.scans.MarkScanSynced(ctx, scan.ID, e.now()); err != nil {
		log.Error().Err(err).Msg("Failed to mark scan synced")
		return failed(fmt.Errorf("failed to mark scan synced: %w", err))
	}

	return eventOutcome{status: eventSynced}
}

func (e *Engine) deriveAttendance(ctx context.Context, device *model.BiometricDevice, scan *model.BiometricAttendance) error {
	student, err := e.students.GetStudent(ctx, scan.TenantID, scan.StudentID)
	if err != nil {
		return fmt.Errorf("failed to look up student: %w", err)
	}

	session, err := e.matcher.FindSchedule(ctx, scan.TenantID, student.ClassID, scan.ScannedAt)
	if err != nil {
		return fmt.Errorf("failed to look up schedule: %w", err)
	}
	if session == nil {
		return nil
	}

	existing, err := e.attendances.FindExisting(ctx, scan.TenantID, scan.StudentID, session.ID, scan.ScanDate)
	if err != nil {
		return fmt.Errorf("failed to check existing attendance: %w", err)
	}
	if existing != nil {
		return nil
	}

	status, err := e.matcher.Classify(session.StartTime, scan.ScannedAt)
	if err != nil {
		return fmt.Errorf("schedule %d: %w", session.ID, err)
	}

	teacherID := session.TeacherID
	deviceID := device.ID
	record := &model.Attendance{
		TenantID:       scan.TenantID,
		StudentID:      scan.StudentID,
		ScheduleID:     session.ID,
		AttendanceDate: scan.ScanDate,
		Status:         status,
		TeacherID:      &teacherID,
		DeviceID:       &deviceID,
		Source:         model.AttendanceSourceBiometric,
		CheckInTime:    scan.ScanTime,
		CreatedAt:      e.now(),
	}

	// A concurrent batch may have inserted the session row first; that is fine.
	if _, err := e.attendances.Insert(ctx, record); err != nil {
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

// Repair re-derives attendance for stored scans left pending or failed, one
// at a time. Scans whose device is gone or inactive are skipped. Device
// health is not touched since no device reported anything.
func (e *Engine) Repair(ctx context.Context, scans []model.BiometricAttendance) *model.SyncResult {
	type deviceKey struct {
		tenantID string
		id       int64
	}

	result := &model.SyncResult{Errors: []string{}}
	devices := make(map[deviceKey]*model.BiometricDevice)

	for i := range scans {
		if ctx.Err() != nil {
			break
		}
		scan := &scans[i]

		key := deviceKey{tenantID: scan.TenantID, id: scan.DeviceID}
		device, seen := devices[key]
		if !seen {
			d, err := e.devices.Get(ctx, scan.TenantID, scan.DeviceID)
			if err != nil && !errors.IsNotFound(err) {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("scan %d: %v", scan.ID, err))
				continue
			}
			device = d
			devices[key] = d
		}
		if device == nil || device.Status == model.DeviceStatusInactive {
			result.Skipped++
			continue
		}

		outcome := e.finish(ctx, device, scan)
		if outcome.status == eventSynced {
			result.Synced++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("scan %d: %v", scan.ID, outcome.err))
	}

	return result
}

func failed(err error) eventOutcome {
	return eventOutcome{status: eventFailed, err: err}
}

package app

import (
	"database/sql"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/db"
	"biometric-attendance-sync/internal/device"
	"biometric-attendance-sync/internal/directory"
	"biometric-attendance-sync/internal/enrollment"
	"biometric-attendance-sync/internal/health"
	ingest "biometric-attendance-sync/internal/sync"
)

// Services is the domain layer shared by the API server and the workers.
type Services struct {
	Scans       db.ScanRepository
	Directory   *directory.Client
	Registry    *device.Registry
	Enrollments *enrollment.Store
	Monitor     *health.Monitor
	Engine      *ingest.Engine
}

func NewServices(cfg *config.Config, database *sql.DB) *Services {
	devices := db.NewDeviceRepository(database)
	scans := db.NewScanRepository(database)
	dir := directory.NewClient(cfg.Directory)

	registry := device.NewRegistry(devices)
	enrollments := enrollment.NewStore(db.NewEnrollmentRepository(database), registry, dir)
	monitor := health.NewMonitor(devices, scans)

	engine := ingest.NewEngine(cfg, ingest.Dependencies{
		Devices:     registry,
		Enrollments: enrollments,
		Scans:       scans,
		Attendances: db.NewAttendanceRepository(database),
		Students:    dir,
		Schedules:   dir,
		Health:      monitor,
	})

	return &Services{
		Scans:       scans,
		Directory:   dir,
		Registry:    registry,
		Enrollments: enrollments,
		Monitor:     monitor,
		Engine:      engine,
	}
}

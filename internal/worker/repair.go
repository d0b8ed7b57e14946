package worker

import (
	"context"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"

	"github.com/rs/zerolog"
)

type UnsyncedLister interface {
	ListUnsynced(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]model.BiometricAttendance, error)
}

type ScanRepairer interface {
	Repair(ctx context.Context, scans []model.BiometricAttendance) *model.SyncResult
}

// RepairWorker periodically finishes audit rows that a crashed or failed
// request left pending or failed, so they do not wait for the device to
// resend the same batch.
type RepairWorker struct {
	cfg    *config.Config
	scans  UnsyncedLister
	engine ScanRepairer
	ticker *time.Ticker
	now    func() time.Time
	log    zerolog.Logger
}

func NewRepairWorker(cfg *config.Config, scans UnsyncedLister, engine ScanRepairer) *RepairWorker {
	return &RepairWorker{
		cfg:    cfg,
		scans:  scans,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Get(),
	}
}

func (w *RepairWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Workers.Repair.Interval).Msg("Starting repair worker")

	if w.cfg.Workers.Repair.RunOnStart {
		w.log.Info().Msg("Running initial repair pass on startup")
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error().Err(err).Msg("Initial repair pass failed")
		}
	}

	w.ticker = time.NewTicker(w.cfg.Workers.Repair.Interval)
	defer w.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Repair worker context cancelled")
			return ctx.Err()
		case <-w.ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("Scheduled repair pass failed")
			}
		}
	}
}

func (w *RepairWorker) Stop() {
	w.log.Info().Msg("Stopping repair worker")
}

// RunOnce repairs one page of unsynced audit rows inside the age window.
func (w *RepairWorker) RunOnce(ctx context.Context) (*model.SyncResult, error) {
	start := time.Now()
	now := w.now()
	cfg := w.cfg.Workers.Repair

	scans, err := w.scans.ListUnsynced(ctx, now.Add(-cfg.MaxAge), now.Add(-cfg.MinAge), cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		w.log.Debug().Msg("No audit rows to repair")
		return &model.SyncResult{Errors: []string{}}, nil
	}

	result := w.engine.Repair(ctx, scans)

	w.log.Info().
		Int("candidates", len(scans)).
		Int("repaired", result.Synced).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Repair pass completed")

	return result, nil
}

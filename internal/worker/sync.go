package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/internal/queue"

	"github.com/rs/zerolog"
)

// BatchIngester is implemented by the sync engine.
type BatchIngester interface {
	IngestBatch(ctx context.Context, tenantID string, deviceID int64, events []model.RawScanEvent) (*model.SyncResult, error)
}

// DeadLetterer parks a message that could not be applied.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, queueName string, data []byte) error
}

// SyncWorker applies scan batches that the API accepted asynchronously.
type SyncWorker struct {
	cfg        *config.Config
	engine     BatchIngester
	consumer   *queue.Consumer
	dlq        DeadLetterer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewSyncWorker(
	cfg *config.Config,
	engine BatchIngester,
	redisClient *queue.RedisClient,
) *SyncWorker {
	consumer := queue.NewConsumer(redisClient, cfg)
	return &SyncWorker{
		cfg:        cfg,
		engine:     engine,
		consumer:   consumer,
		dlq:        consumer,
		workerPool: NewWorkerPool(cfg.Workers.Sync.Count),
		log:        logger.Get(),
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting sync worker")

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeSyncQueue(ctx, w.handleMessage)
}

func (w *SyncWorker) Stop() {
	w.log.Info().Msg("Stopping sync worker")
	w.workerPool.Stop()
}

func (w *SyncWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal sync job")
		return err
	}

	w.log.Info().
		Str("tenant_id", job.TenantID).
		Int64("device_id", job.DeviceID).
		Int("events", len(job.Events)).
		Msg("Processing sync job")

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		if err := w.processJob(ctx, job); err != nil {
			if dlqErr := w.dlq.DeadLetter(ctx, w.cfg.Redis.SyncQueue, data); dlqErr != nil {
				w.log.Error().Err(dlqErr).Msg("Failed to park sync job")
			}
			return err
		}
		return nil
	})
}

// processJob fails only when the batch could not be applied at all. Per-event
// failures are already recorded on the audit rows and device health.
func (w *SyncWorker) processJob(ctx context.Context, job model.SyncJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Sync.BatchTimeout)
	defer cancel()

	log := logger.ForDevice(w.log, job.TenantID, job.DeviceID)
	result, err := w.engine.IngestBatch(ctx, job.TenantID, job.DeviceID, job.Events)
	if err != nil {
		return fmt.Errorf("sync job for device %d: %w", job.DeviceID, err)
	}

	log.Info().
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("queued_for", time.Since(job.EnqueuedAt)).
		Msg("Sync job completed")
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/excel"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/internal/queue"
	"biometric-attendance-sync/internal/storage"

	"github.com/rs/zerolog"
)

// ExportIngester applies an export batch by batch and updates device health
// once for the whole file.
type ExportIngester interface {
	ApplyBatch(ctx context.Context, tenantID string, deviceID int64, events []model.RawScanEvent) (*model.SyncResult, error)
	RecordOutcome(ctx context.Context, tenantID string, deviceID int64, result *model.SyncResult)
}

// ImportWorker applies device log exports uploaded through the API.
type ImportWorker struct {
	cfg        *config.Config
	engine     ExportIngester
	storage    storage.Storage
	parser     excel.ParsingStrategy
	consumer   *queue.Consumer
	dlq        DeadLetterer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewImportWorker(
	cfg *config.Config,
	engine ExportIngester,
	storage storage.Storage,
	redisClient *queue.RedisClient,
) *ImportWorker {
	consumer := queue.NewConsumer(redisClient, cfg)
	return &ImportWorker{
		cfg:        cfg,
		engine:     engine,
		storage:    storage,
		parser:     excel.NewExcelStrategy(cfg.Sync.MaxBatchSize * 50),
		consumer:   consumer,
		dlq:        consumer,
		workerPool: NewWorkerPool(cfg.Workers.Import.Count),
		log:        logger.Get(),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeImportQueue(ctx, w.handleMessage)
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal import job")
		return err
	}

	w.log.Info().
		Str("tenant_id", job.TenantID).
		Int64("device_id", job.DeviceID).
		Str("s3_path", job.S3Path).
		Msg("Processing import job")

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		if _, err := w.processFile(ctx, job); err != nil {
			if dlqErr := w.dlq.DeadLetter(ctx, w.cfg.Redis.ImportQueue, data); dlqErr != nil {
				w.log.Error().Err(dlqErr).Msg("Failed to park import job")
			}
			return err
		}
		return nil
	})
}

// processFile downloads, parses and ingests one export in chunks of
// workers.import.batch_size. Every chunk is idempotent, so a job replayed from
// the DLQ only applies what is still missing. Device health reflects the
// whole file, not its last chunk. A job whose key was issued for another
// tenant or device is refused before anything is downloaded.
func (w *ImportWorker) processFile(ctx context.Context, job model.ImportJob) (*model.SyncResult, error) {
	log := logger.ForDevice(w.log, job.TenantID, job.DeviceID).With().Str("s3_path", job.S3Path).Logger()

	if err := storage.CheckImportKey(w.cfg.Storage.S3.Prefix, job.S3Path, job.TenantID, job.DeviceID); err != nil {
		return nil, err
	}

	log.Debug().Msg("Downloading export from S3")
	reader, err := w.storage.Download(ctx, job.S3Path)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", job.S3Path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", job.S3Path, err)
	}

	events, err := w.parser.Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", job.S3Path, err)
	}

	log.Debug().Int("event_count", len(events)).Msg("Validating parsed events")
	if err := w.parser.Validate(ctx, events); err != nil {
		return nil, fmt.Errorf("invalid export %s: %w", job.S3Path, err)
	}

	batchSize := w.cfg.Workers.Import.BatchSize
	if batchSize < 1 {
		batchSize = len(events)
	}

	total := &model.SyncResult{Errors: []string{}}
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}

		result, err := w.ingestChunk(ctx, job, events[start:end])
		if err != nil {
			return total, fmt.Errorf("failed to ingest entries %d-%d: %w", start+1, end, err)
		}

		total.Synced += result.Synced
		total.Failed += result.Failed
		total.Skipped += result.Skipped
		for _, msg := range result.Errors {
			total.Errors = append(total.Errors, fmt.Sprintf("entries %d-%d: %s", start+1, end, msg))
		}
	}

	w.engine.RecordOutcome(ctx, job.TenantID, job.DeviceID, total)

	log.Info().
		Int("synced", total.Synced).
		Int("failed", total.Failed).
		Int("skipped", total.Skipped).
		Msg("Import completed")

	return total, nil
}

func (w *ImportWorker) ingestChunk(ctx context.Context, job model.ImportJob, events []model.RawScanEvent) (*model.SyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Sync.BatchTimeout)
	defer cancel()

	return w.engine.ApplyBatch(ctx, job.TenantID, job.DeviceID, events)
}

package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/device"
	"biometric-attendance-sync/internal/enrollment"
	"biometric-attendance-sync/internal/health"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/internal/storage"
	"biometric-attendance-sync/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BatchIngester is implemented by the sync engine.
type BatchIngester interface {
	IngestBatch(ctx context.Context, tenantID string, deviceID int64, events []model.RawScanEvent) (*model.SyncResult, error)
}

// JobQueue is implemented by the Redis producer.
type JobQueue interface {
	EnqueueSyncJob(ctx context.Context, job model.SyncJob) error
	EnqueueImportJob(ctx context.Context, job model.ImportJob) error
	Backlog(ctx context.Context) (map[string]int64, error)
}

type Services struct {
	Registry    *device.Registry
	Enrollments *enrollment.Store
	Engine      BatchIngester
	Monitor     *health.Monitor
	Queue       JobQueue
	Storage     storage.Storage
}

type Handler struct {
	registry    *device.Registry
	enrollments *enrollment.Store
	engine      BatchIngester
	monitor     *health.Monitor
	queue       JobQueue
	storage     storage.Storage
	cfg         *config.Config
	now         func() time.Time
	log         zerolog.Logger
}

func NewHandler(cfg *config.Config, services Services) *Handler {
	return &Handler{
		registry:    services.Registry,
		enrollments: services.Enrollments,
		engine:      services.Engine,
		monitor:     services.Monitor,
		queue:       services.Queue,
		storage:     services.Storage,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.Get(),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

// QueueBacklog reports pending and dead-lettered jobs per queue.
func (h *Handler) QueueBacklog(c *gin.Context) {
	depths, err := h.queue.Backlog(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read queue backlog")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue backlog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queues": depths})
}

func (h *Handler) CreateDevice(c *gin.Context) {
	var spec model.DeviceSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	device, err := h.registry.Register(c.Request.Context(), tenantID(c), spec)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, device)
}

func (h *Handler) ListDevices(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))

	devices, err := h.registry.List(c.Request.Context(), tenantID(c), activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

func (h *Handler) GetDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	device, err := h.registry.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch model.DevicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	device, err := h.registry.Update(c.Request.Context(), tenantID(c), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.registry.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateDeviceStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req model.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	device, err := h.monitor.SetStatus(c.Request.Context(), tenantID(c), id, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

func (h *Handler) EnrollStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req model.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), tenantID(c), id, req.StudentID, req.TemplateID, req.Metadata)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, enrollment)
}

func (h *Handler) ListEnrollments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	enrollments, err := h.enrollments.ListForDevice(c.Request.Context(), tenantID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments, "count": len(enrollments)})
}

func (h *Handler) DeleteEnrollment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	enrollment, err := h.enrollments.Unenroll(c.Request.Context(), tenantID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

// SyncDevice ingests a batch of scans. With async=true the batch is queued
// for the sync worker and only structural checks run inline.
func (h *Handler) SyncDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var events []model.RawScanEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be an array of scan events", "details": err.Error()})
		return
	}
	if len(events) > h.cfg.Sync.MaxBatchSize {
		h.respondError(c, errors.ValidationError{
			Field:   "events",
			Value:   len(events),
			Message: "batch exceeds " + strconv.Itoa(h.cfg.Sync.MaxBatchSize) + " events",
		})
		return
	}

	tenant := tenantID(c)
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		h.enqueueSync(c, tenant, id, events)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Sync.BatchTimeout)
	defer cancel()

	result, err := h.engine.IngestBatch(ctx, tenant, id, events)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) enqueueSync(c *gin.Context, tenant string, deviceID int64, events []model.RawScanEvent) {
	if err := h.requireUsableDevice(c.Request.Context(), tenant, deviceID); err != nil {
		h.respondError(c, err)
		return
	}

	job := model.SyncJob{
		TenantID:   tenant,
		DeviceID:   deviceID,
		Events:     events,
		EnqueuedAt: h.now(),
	}
	if err := h.queue.EnqueueSyncJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenant).Int64("device_id", deviceID).Msg("Failed to enqueue sync job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue sync job"})
		return
	}

	h.log.Info().
		Str("tenant_id", tenant).
		Int64("device_id", deviceID).
		Int("events", len(events)).
		Msg("Sync job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Sync job queued successfully",
		"events":  len(events),
	})
}

// UploadImport stores a device log export and queues it for the import worker.
func (h *Handler) UploadImport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Multipart field 'file' is required"})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".xlsx") {
		h.respondError(c, errors.ErrInvalidFileFormat)
		return
	}
	if fileHeader.Size > h.cfg.Server.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the upload limit"})
		return
	}

	tenant := tenantID(c)
	ctx := c.Request.Context()
	if err := h.requireUsableDevice(ctx, tenant, id); err != nil {
		h.respondError(c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Server.MaxUploadSize+1))
	if err != nil {
		h.respondError(c, err)
		return
	}

	uploadedAt := h.now()
	key := storage.ImportKey(h.cfg.Storage.S3.Prefix, tenant, id, uploadedAt)
	if err := h.storage.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to store device export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	job := model.ImportJob{TenantID: tenant, DeviceID: id, S3Path: key, EnqueuedAt: uploadedAt}
	if err := h.queue.EnqueueImportJob(ctx, job); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to enqueue import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().
		Str("tenant_id", tenant).
		Int64("device_id", id).
		Str("s3_path", key).
		Str("filename", fileHeader.Filename).
		Msg("Device export uploaded")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Import queued successfully",
		"job":     job,
	})
}

func (h *Handler) GetPendingSyncs(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	pending, err := h.monitor.GetPendingSyncs(c.Request.Context(), tenantID(c), &id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

func (h *Handler) GetSyncStatistics(c *gin.Context) {
	var filter model.StatsFilter

	if raw := c.Query("deviceId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.respondError(c, errors.ValidationError{Field: "deviceId", Value: raw, Message: "must be an integer"})
			return
		}
		filter.DeviceID = &id
	}

	var err error
	if filter.From, err = h.queryTime(c, "from", false); err != nil {
		h.respondError(c, err)
		return
	}
	if filter.To, err = h.queryTime(c, "to", true); err != nil {
		h.respondError(c, err)
		return
	}

	stats, err := h.monitor.GetSyncStatistics(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// queryTime accepts RFC3339 or a bare date in the school timezone. A bare
// upper bound covers the whole day.
func (h *Handler) queryTime(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, h.cfg.Location())
	if err != nil {
		return nil, errors.ValidationError{Field: name, Value: raw, Message: "must be RFC3339 or YYYY-MM-DD"}
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return &t, nil
}

// requireUsableDevice runs the structural checks IngestBatch would, for
// requests that defer ingestion to a worker.
func (h *Handler) requireUsableDevice(ctx context.Context, tenant string, id int64) error {
	device, err := h.registry.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	if device.Status == model.DeviceStatusInactive {
		return errors.ErrDeviceInactive
	}
	return nil
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		validationErr errors.ValidationError
		duplicateErr  errors.DuplicateDeviceError
	)

	switch {
	case stderrors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case stderrors.As(err, &duplicateErr):
		c.JSON(http.StatusConflict, gin.H{"error": duplicateErr.Error()})
	case stderrors.Is(err, errors.ErrDeviceInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrInvalidFileFormat),
		stderrors.Is(err, errors.ErrEmptyBatch),
		stderrors.Is(err, errors.ErrInvalidTimestamp):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case stderrors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString(requestIDKey)).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

package model

import (
	"encoding/json"
	"time"
)

// RawScanEvent is one scan as reported by a device or gateway.
type RawScanEvent struct {
	TemplateID string          `json:"templateId"`
	Timestamp  string          `json:"timestamp"`
	Type       string          `json:"type,omitempty"`
	RawData    json.RawMessage `json:"rawData,omitempty"`
}

// SyncResult aggregates one IngestBatch call. Skipped counts retransmitted
// scans that were already applied.
type SyncResult struct {
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// SyncOutcome is what the health monitor needs from a finished batch.
type SyncOutcome struct {
	Success      bool
	ErrorSummary []string
}

type SyncJob struct {
	TenantID   string         `json:"tenant_id"`
	DeviceID   int64          `json:"device_id"`
	Events     []RawScanEvent `json:"events"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// ImportJob points at a device log export stored in object storage.
type ImportJob struct {
	TenantID   string    `json:"tenant_id"`
	DeviceID   int64     `json:"device_id"`
	S3Path     string    `json:"s3_path"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type StatusUpdateRequest struct {
	Status DeviceStatus `json:"status" binding:"required"`
}

type StatsFilter struct {
	DeviceID *int64
	From     *time.Time
	To       *time.Time
}

type SyncStatistics struct {
	Total        int                `json:"total"`
	BySyncStatus map[SyncStatus]int `json:"by_sync_status"`
	ByScanType   map[ScanType]int   `json:"by_scan_type"`
	From         *time.Time         `json:"from,omitempty"`
	To           *time.Time         `json:"to,omitempty"`
	DeviceID     *int64             `json:"device_id,omitempty"`
}

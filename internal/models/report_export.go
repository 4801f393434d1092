package models

import (
	"time"

	"github.com/google/uuid"
)

// Report export statuses.
const (
	ExportStatusQueued    = "queued"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// ReportExport tracks an asynchronous CSV export uploaded to object storage.
type ReportExport struct {
	ID           uuid.UUID  `json:"id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	S3Key        string     `json:"s3_key,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RequestedBy  uuid.UUID  `json:"requested_by"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

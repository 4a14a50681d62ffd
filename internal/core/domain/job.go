// internal/core/domain/job.go
package domain

import (
	"encoding/json"
	"time"
)

// JobStatus is the state of an async job
type JobStatus string

const (
	JobStatusQueued              JobStatus = "queued"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

// IsFinal reports whether no further transitions happen
func (s JobStatus) IsFinal() bool {
	return s == JobStatusCompleted || s == JobStatusCompletedWithErrors || s == JobStatusFailed
}

// Job types
const (
	JobTypePOImport    = "po_pdf_import"
	JobTypeStockImport = "stock_excel_import"
	JobTypeExport      = "report_export"
)

// Job tracks a background import or export
type Job struct {
	ID          string          `json:"jobId"`
	Type        string          `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// internal/workers/tasks.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

const (
	TypePOImport         = "import:po_pdf"
	TypeStockImport      = "import:stock_excel"
	TypeReportExport     = "report:export"
	TypeCleanupOldData   = "cleanup:old_data"
	TypeCleanupTempFiles = "cleanup:temp_files"
)

// POImportPayload is the payload of a supplier invoice import
type POImportPayload struct {
	JobID       string `json:"job_id"`
	FilePath    string `json:"file_path"`
	SupplierID  int64  `json:"supplier_id,omitempty"`
	WarehouseID int64  `json:"warehouse_id"`
}

// StockImportPayload is the payload of a stock count sheet import
type StockImportPayload struct {
	JobID    string `json:"job_id"`
	FilePath string `json:"file_path"`
}

// ReportExportPayload is the payload of an async report export
type ReportExportPayload struct {
	JobID        string `json:"job_id"`
	Report       string `json:"report"`
	ReceivedOnly bool   `json:"received_only,omitempty"`
}

// NewTask marshals payload into a task of the given type
func NewTask(taskType string, payload any) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, b), nil
}

func decodePayload(t *asynq.Task, dest any) error {
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// permanent marks errors that a retry cannot fix
func permanent(err error) error {
	if err == nil {
		return nil
	}
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindNotFound, domain.KindInvalidState:
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// jobTracker records job progress in the jobs table. Tracking failures
// are logged and never fail the task itself.
type jobTracker struct {
	jobs   ports.JobRepository
	logger *slog.Logger
}

func (t jobTracker) start(ctx context.Context, id string) {
	if err := t.jobs.UpdateStatus(ctx, id, domain.JobStatusProcessing, ""); err != nil {
		t.logger.WarnContext(ctx, "failed to mark job processing",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
	}
}

func (t jobTracker) complete(ctx context.Context, id string, status domain.JobStatus, result any) {
	b, err := json.Marshal(result)
	if err != nil {
		t.fail(ctx, id, err)
		return
	}
	if err := t.jobs.Complete(ctx, id, status, b); err != nil {
		t.logger.WarnContext(ctx, "failed to record job result",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
	}
}

func (t jobTracker) fail(ctx context.Context, id string, cause error) {
	if err := t.jobs.UpdateStatus(ctx, id, domain.JobStatusFailed, cause.Error()); err != nil {
		t.logger.WarnContext(ctx, "failed to mark job failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
	}
}

// failIfFinal marks the job failed once asynq will not retry the task
func (t jobTracker) failIfFinal(ctx context.Context, id string, cause error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if errors.Is(cause, asynq.SkipRetry) || retried >= maxRetry {
		t.fail(ctx, id, cause)
	}
}

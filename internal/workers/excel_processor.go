// internal/workers/excel_processor.go
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/adapters/spreadsheet"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// RowError describes a stock count row that was not applied
type RowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// StockImportResult is stored on the job when a stock count import finishes
type StockImportResult struct {
	Rows           int        `json:"rows"`
	Applied        int        `json:"applied"`
	Unchanged      int        `json:"unchanged"`
	Failed         int        `json:"failed"`
	Errors         []RowError `json:"errors,omitempty"`
	ProcessingTime string     `json:"processingTime"`
}

// ExcelProcessor applies stock count sheets to the ledger
type ExcelProcessor struct {
	ledger ports.StockLedgerService
	jobs   jobTracker
	logger *slog.Logger
}

// NewExcelProcessor creates a new Excel processor
func NewExcelProcessor(ledger ports.StockLedgerService, jobs ports.JobRepository, logger *slog.Logger) *ExcelProcessor {
	logger = logger.With(slog.String("processor", "excel"))
	return &ExcelProcessor{
		ledger: ledger,
		jobs:   jobTracker{jobs: jobs, logger: logger},
		logger: logger,
	}
}

// ProcessStockImport handles TypeStockImport tasks. Rows are applied one
// by one; a failing row is recorded and the rest continue. Once rows start
// being applied the task is never retried, so no row is applied twice.
func (p *ExcelProcessor) ProcessStockImport(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload StockImportPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "processing stock count sheet",
		slog.String("job_id", payload.JobID))
	p.jobs.start(ctx, payload.JobID)

	rows, err := spreadsheet.ReadStockCount(payload.FilePath)
	if err != nil {
		err = permanent(domain.NewValidationError("failed to read stock count sheet: %v", err))
		p.jobs.fail(ctx, payload.JobID, err)
		removeUpload(payload.FilePath)
		return err
	}

	result := StockImportResult{Rows: len(rows)}
	for _, row := range rows {
		changed, err := p.applyRow(ctx, row)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, RowError{Line: row.Line, Error: err.Error()})
		case changed:
			result.Applied++
		default:
			result.Unchanged++
		}
	}
	result.ProcessingTime = time.Since(start).String()

	status := domain.JobStatusCompleted
	if result.Failed > 0 {
		status = domain.JobStatusCompletedWithErrors
	}
	p.jobs.complete(ctx, payload.JobID, status, result)
	removeUpload(payload.FilePath)

	p.logger.InfoContext(ctx, "stock count imported",
		slog.String("job_id", payload.JobID),
		slog.Int("rows", result.Rows),
		slog.Int("applied", result.Applied),
		slog.Int("failed", result.Failed))
	return nil
}

// countAttempts bounds how often a count is re-read when stock moves
// between the read and the write
const countAttempts = 3

// applyRow adjusts one key and reports whether stock changed
func (p *ExcelProcessor) applyRow(ctx context.Context, row spreadsheet.StockCountRow) (bool, error) {
	if row.Err != nil {
		return false, row.Err
	}

	key := domain.StockKey{ProductID: row.ProductID, WarehouseID: row.WarehouseID}
	if row.Counted != nil {
		return ApplyCount(ctx, p.ledger, key, *row.Counted)
	}

	adj := domain.StockAdjustment{ProductID: key.ProductID, WarehouseID: key.WarehouseID, Delta: *row.Delta}
	if adj.Delta == 0 {
		return false, adj.Validate()
	}
	if _, err := p.ledger.Adjust(ctx, adj); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyCount brings key to the counted quantity and reports whether stock
// changed. The delta is written only while the entry still holds the
// quantity it was computed from; a concurrent change triggers a re-read.
func ApplyCount(ctx context.Context, ledger ports.StockLedgerService, key domain.StockKey, counted int64) (bool, error) {
	var err error
	for range countAttempts {
		var current int64
		entry, gerr := ledger.Get(ctx, key)
		switch {
		case gerr == nil:
			current = entry.Quantity
		case errors.Is(gerr, domain.ErrNotFound):
		default:
			return false, gerr
		}

		adj := domain.StockAdjustment{
			ProductID:   key.ProductID,
			WarehouseID: key.WarehouseID,
			Delta:       counted - current,
			Expected:    &current,
		}
		if adj.Delta == 0 {
			return false, adj.Validate()
		}

		_, err = ledger.Adjust(ctx, adj)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrStockChanged) {
			return false, err
		}
	}
	return false, err
}

// internal/workers/excel_processor_test.go
package workers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/workers"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Count")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, file.Write(&buf))
	return helpers.CreateTempFile(t, buf.Bytes(), ".xlsx")
}

func int64p(v int64) *int64 { return &v }

func TestExcelProcessor_ProcessStockImport(t *testing.T) {
	ctx := context.Background()

	t.Run("delta_rows_with_failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedgerService(ctrl)
		jobs := mocks.NewMockJobRepository(ctrl)

		path := writeWorkbook(t, [][]string{
			{"product_id", "warehouse_id", "delta"},
			{"1", "1", "5"},
			{"2", "1", "-9"},
			{"oops", "1", "1"},
			{"3", "1", "0"},
		})

		ledger.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 1, WarehouseID: 1, Delta: 5}).
			Return(&domain.StockEntry{ProductID: 1, WarehouseID: 1, Quantity: 5}, nil)
		ledger.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 2, WarehouseID: 1, Delta: -9}).
			Return(nil, domain.ErrInsufficientStock)

		var result workers.StockImportResult
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-1", domain.JobStatusProcessing, "").Return(nil)
		jobs.EXPECT().Complete(gomock.Any(), "job-1", domain.JobStatusCompletedWithErrors, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ domain.JobStatus, raw json.RawMessage) error {
				return json.Unmarshal(raw, &result)
			})

		processor := workers.NewExcelProcessor(ledger, jobs, helpers.TestLogger())
		task, err := workers.NewTask(workers.TypeStockImport, workers.StockImportPayload{JobID: "job-1", FilePath: path})
		require.NoError(t, err)

		require.NoError(t, processor.ProcessStockImport(ctx, task))

		assert.Equal(t, 4, result.Rows)
		assert.Equal(t, 1, result.Applied)
		assert.Equal(t, 1, result.Unchanged)
		assert.Equal(t, 2, result.Failed)
		require.Len(t, result.Errors, 2)
		assert.Equal(t, 3, result.Errors[0].Line)
		assert.Contains(t, result.Errors[0].Error, "insufficient stock")
		assert.Equal(t, 4, result.Errors[1].Line)
	})

	t.Run("counted_rows_reconcile_against_ledger", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedgerService(ctrl)
		jobs := mocks.NewMockJobRepository(ctrl)

		path := writeWorkbook(t, [][]string{
			{"Product ID", "Warehouse ID", "Counted"},
			{"1", "2", "12"},
			{"7", "2", "4"},
			{"8", "2", "3"},
		})

		ledger.EXPECT().Get(gomock.Any(), domain.StockKey{ProductID: 1, WarehouseID: 2}).
			Return(&domain.StockEntry{ProductID: 1, WarehouseID: 2, Quantity: 20}, nil)
		ledger.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 1, WarehouseID: 2, Delta: -8, Expected: int64p(20)}).
			Return(&domain.StockEntry{Quantity: 12}, nil)
		ledger.EXPECT().Get(gomock.Any(), domain.StockKey{ProductID: 7, WarehouseID: 2}).
			Return(nil, domain.NewNotFoundError("stock entry", "7:2"))
		ledger.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: 4, Expected: int64p(0)}).
			Return(&domain.StockEntry{Quantity: 4}, nil)
		ledger.EXPECT().Get(gomock.Any(), domain.StockKey{ProductID: 8, WarehouseID: 2}).
			Return(&domain.StockEntry{ProductID: 8, WarehouseID: 2, Quantity: 3}, nil)

		var result workers.StockImportResult
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-2", domain.JobStatusProcessing, "").Return(nil)
		jobs.EXPECT().Complete(gomock.Any(), "job-2", domain.JobStatusCompleted, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ domain.JobStatus, raw json.RawMessage) error {
				return json.Unmarshal(raw, &result)
			})

		processor := workers.NewExcelProcessor(ledger, jobs, helpers.TestLogger())
		task, err := workers.NewTask(workers.TypeStockImport, workers.StockImportPayload{JobID: "job-2", FilePath: path})
		require.NoError(t, err)

		require.NoError(t, processor.ProcessStockImport(ctx, task))
		assert.Equal(t, 2, result.Applied)
		assert.Equal(t, 1, result.Unchanged)
		assert.Zero(t, result.Failed)
	})

	t.Run("unreadable_sheet_fails_job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)

		path := helpers.CreateTempFile(t, []byte("not a workbook"), ".xlsx")
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-3", domain.JobStatusProcessing, "").Return(nil)
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-3", domain.JobStatusFailed, gomock.Any()).Return(nil)

		processor := workers.NewExcelProcessor(mocks.NewMockStockLedgerService(ctrl), jobs, helpers.TestLogger())
		task, err := workers.NewTask(workers.TypeStockImport, workers.StockImportPayload{JobID: "job-3", FilePath: path})
		require.NoError(t, err)

		err = processor.ProcessStockImport(ctx, task)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}

func TestApplyCount(t *testing.T) {
	ctx := context.Background()
	key := domain.StockKey{ProductID: 5, WarehouseID: 1}

	t.Run("rereads_when_stock_moves_before_the_write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedgerService(ctrl)

		// a sale lands between the first read and the write
		gomock.InOrder(
			ledger.EXPECT().Get(gomock.Any(), key).
				Return(&domain.StockEntry{ProductID: 5, WarehouseID: 1, Quantity: 10}, nil),
			ledger.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 5, WarehouseID: 1, Delta: 2, Expected: int64p(10)}).
				Return(nil, domain.ErrStockChanged),
			ledger.EXPECT().Get(gomock.Any(), key).
				Return(&domain.StockEntry{ProductID: 5, WarehouseID: 1, Quantity: 7}, nil),
			ledger.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 5, WarehouseID: 1, Delta: 5, Expected: int64p(7)}).
				Return(&domain.StockEntry{ProductID: 5, WarehouseID: 1, Quantity: 12}, nil),
		)

		changed, err := workers.ApplyCount(ctx, ledger, key, 12)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("gives_up_on_constant_churn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedgerService(ctrl)
		ledger.EXPECT().Get(gomock.Any(), key).
			Return(&domain.StockEntry{ProductID: 5, WarehouseID: 1, Quantity: 1}, nil).Times(3)
		ledger.EXPECT().Adjust(gomock.Any(), gomock.Any()).Return(nil, domain.ErrStockChanged).Times(3)

		changed, err := workers.ApplyCount(ctx, ledger, key, 12)
		assert.False(t, changed)
		assert.ErrorIs(t, err, domain.ErrStockChanged)
	})

	t.Run("count_already_matches", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedgerService(ctrl)
		ledger.EXPECT().Get(gomock.Any(), key).
			Return(&domain.StockEntry{ProductID: 5, WarehouseID: 1, Quantity: 12}, nil)

		changed, err := workers.ApplyCount(ctx, ledger, key, 12)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("insufficient_stock_is_not_retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedgerService(ctrl)
		ledger.EXPECT().Get(gomock.Any(), key).Return(nil, domain.NewNotFoundError("stock entry", key))
		ledger.EXPECT().Adjust(gomock.Any(), gomock.Any()).Return(nil, domain.ErrInsufficientStock)

		_, err := workers.ApplyCount(ctx, ledger, key, 3)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	})
}

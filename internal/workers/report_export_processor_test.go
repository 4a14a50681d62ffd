// internal/workers/report_export_processor_test.go
package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockflow/internal/adapters/spreadsheet"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/workers"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func TestReportExportProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads_and_records_url", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reports := mocks.NewMockReportService(ctrl)
		storage := mocks.NewMockObjectStorage(ctrl)
		jobs := mocks.NewMockJobRepository(ctrl)

		reports.EXPECT().Turnover(gomock.Any(), domain.TurnoverOptions{ReceivedOnly: true}).
			Return(&domain.TurnoverReport{
				ReportMeta:   domain.ReportMeta{GeneratedAt: time.Now()},
				ReceivedOnly: true,
				Rows:         []domain.TurnoverRow{{ProductID: 1, ProductName: "Widget", QuantitySold: 2, TotalRevenue: decimal.NewFromInt(20)}},
				TotalRevenue: decimal.NewFromInt(20),
			}, nil)

		var uploadedKey string
		storage.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), spreadsheet.ContentType).
			DoAndReturn(func(_ context.Context, key string, r io.Reader, _ string) error {
				uploadedKey = key
				data, err := io.ReadAll(r)
				require.NoError(t, err)
				assert.NotEmpty(t, data)
				return nil
			})
		storage.EXPECT().GetPresignedURL(gomock.Any(), gomock.Any(), 15*time.Minute).
			DoAndReturn(func(_ context.Context, key string, _ time.Duration) (string, error) {
				return "https://exports.example/" + key, nil
			})

		var result workers.ReportExportResult
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-1", domain.JobStatusProcessing, "").Return(nil)
		jobs.EXPECT().Complete(gomock.Any(), "job-1", domain.JobStatusCompleted, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ domain.JobStatus, raw json.RawMessage) error {
				return json.Unmarshal(raw, &result)
			})

		processor := workers.NewReportExportProcessor(reports, storage, jobs, 15*time.Minute, helpers.TestLogger())
		task, err := workers.NewTask(workers.TypeReportExport, workers.ReportExportPayload{
			JobID: "job-1", Report: domain.ReportTurnover, ReceivedOnly: true,
		})
		require.NoError(t, err)

		require.NoError(t, processor.ProcessReportExport(ctx, task))

		assert.True(t, strings.HasPrefix(uploadedKey, "exports/"))
		assert.True(t, strings.HasSuffix(uploadedKey, "/turnover/job-1.xlsx"))
		assert.Equal(t, uploadedKey, result.ObjectKey)
		assert.Equal(t, "https://exports.example/"+uploadedKey, result.URL)
		assert.False(t, result.Degraded)
	})

	t.Run("unknown_report_is_permanent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)

		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-2", domain.JobStatusProcessing, "").Return(nil)
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-2", domain.JobStatusFailed, gomock.Any()).Return(nil)

		processor := workers.NewReportExportProcessor(
			mocks.NewMockReportService(ctrl), mocks.NewMockObjectStorage(ctrl), jobs, time.Hour, helpers.TestLogger())
		task, err := workers.NewTask(workers.TypeReportExport, workers.ReportExportPayload{JobID: "job-2", Report: "margins"})
		require.NoError(t, err)

		err = processor.ProcessReportExport(ctx, task)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("upload_failure_is_retryable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reports := mocks.NewMockReportService(ctrl)
		storage := mocks.NewMockObjectStorage(ctrl)
		jobs := mocks.NewMockJobRepository(ctrl)

		reports.EXPECT().StockValuation(gomock.Any()).
			Return(&domain.StockValuationReport{ReportMeta: domain.ReportMeta{GeneratedAt: time.Now()}}, nil)
		storage.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("connection reset"))
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-3", domain.JobStatusProcessing, "").Return(nil)
		jobs.EXPECT().UpdateStatus(gomock.Any(), "job-3", domain.JobStatusFailed, gomock.Any()).Return(nil)

		processor := workers.NewReportExportProcessor(reports, storage, jobs, time.Hour, helpers.TestLogger())
		task, err := workers.NewTask(workers.TypeReportExport, workers.ReportExportPayload{
			JobID: "job-3", Report: domain.ReportStockValuation,
		})
		require.NoError(t, err)

		err = processor.ProcessReportExport(ctx, task)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})
}

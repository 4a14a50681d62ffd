package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockflow/internal/adapters/spreadsheet"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/handlers"
	"github.com/ammerola/stockflow/internal/workers"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func newReportHandler(reports *mocks.MockReportService, jobs *mocks.MockJobRepository, enq *fakeEnqueuer, receivedOnly bool) *handlers.ReportHandler {
	return handlers.NewReportHandler(reports, jobs, enq, handlers.JobQueueConfig{}, receivedOnly, helpers.TestLogger())
}

func TestReportHandler_StockValuation(t *testing.T) {
	ctrl := gomock.NewController(t)
	reports := mocks.NewMockReportService(ctrl)

	report := &domain.StockValuationReport{
		Rows:       []domain.StockValuationRow{{ProductID: 1, ProductName: "Unknown", Quantity: 4, Price: decimal.Zero, TotalValue: decimal.Zero}},
		TotalValue: decimal.Zero,
	}
	report.MarkFailed(domain.SourceProducts, errors.New("catalog timeout"))
	reports.EXPECT().StockValuation(gomock.Any()).Return(report, nil)

	handler := newReportHandler(reports, mocks.NewMockJobRepository(ctrl), &fakeEnqueuer{}, false)
	w := httptest.NewRecorder()
	handler.StockValuation(w, httptest.NewRequest("GET", "/api/v1/reports/stock-valuation", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(handlers.DegradedHeader))

	body := decodeBody[domain.StockValuationReport](t, w)
	assert.True(t, body.Degraded)
	assert.Contains(t, body.Errors[domain.SourceProducts], "catalog timeout")
}

func TestReportHandler_Turnover(t *testing.T) {
	tests := []struct {
		name                string
		query               string
		defaultReceivedOnly bool
		wantReceivedOnly    bool
		expectedStatus      int
	}{
		{name: "config_default_counts_all_orders", wantReceivedOnly: false, expectedStatus: http.StatusOK},
		{name: "config_received_only", defaultReceivedOnly: true, wantReceivedOnly: true, expectedStatus: http.StatusOK},
		{name: "query_overrides_default", query: "?received_only=false", defaultReceivedOnly: true, wantReceivedOnly: false, expectedStatus: http.StatusOK},
		{name: "invalid_flag", query: "?received_only=maybe", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			reports := mocks.NewMockReportService(ctrl)
			if tt.expectedStatus == http.StatusOK {
				reports.EXPECT().Turnover(gomock.Any(), domain.TurnoverOptions{ReceivedOnly: tt.wantReceivedOnly}).
					Return(&domain.TurnoverReport{ReceivedOnly: tt.wantReceivedOnly}, nil)
			}

			handler := newReportHandler(reports, mocks.NewMockJobRepository(ctrl), &fakeEnqueuer{}, tt.defaultReceivedOnly)
			w := httptest.NewRecorder()
			handler.Turnover(w, httptest.NewRequest("GET", "/api/v1/reports/turnover"+tt.query, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Empty(t, w.Header().Get(handlers.DegradedHeader))
		})
	}
}

func TestReportHandler_ExportXLSX(t *testing.T) {
	t.Run("downloads_workbook", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reports := mocks.NewMockReportService(ctrl)
		reports.EXPECT().Turnover(gomock.Any(), gomock.Any()).Return(&domain.TurnoverReport{
			ReportMeta: domain.ReportMeta{GeneratedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		}, nil)

		handler := newReportHandler(reports, mocks.NewMockJobRepository(ctrl), &fakeEnqueuer{}, false)
		req := httptest.NewRequest("GET", "/api/v1/reports/turnover/export.xlsx", nil)
		req.SetPathValue("name", "turnover")
		w := httptest.NewRecorder()

		handler.ExportXLSX(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, spreadsheet.ContentType, w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="turnover_20240501_103000.xlsx"`, w.Header().Get("Content-Disposition"))
		assert.NotZero(t, w.Body.Len())
	})

	t.Run("unknown_report", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		handler := newReportHandler(mocks.NewMockReportService(ctrl), mocks.NewMockJobRepository(ctrl), &fakeEnqueuer{}, false)
		req := httptest.NewRequest("GET", "/api/v1/reports/margins/export.xlsx", nil)
		req.SetPathValue("name", "margins")
		w := httptest.NewRecorder()

		handler.ExportXLSX(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestReportHandler_QueueExport(t *testing.T) {
	t.Run("queues_job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)
		enq := &fakeEnqueuer{}

		jobs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job *domain.Job) error {
			assert.Equal(t, domain.JobTypeExport, job.Type)
			assert.Equal(t, domain.JobStatusQueued, job.Status)
			return nil
		})

		handler := newReportHandler(mocks.NewMockReportService(ctrl), jobs, enq, true)
		req := httptest.NewRequest("POST", "/api/v1/reports/turnover/exports", nil)
		req.SetPathValue("name", "turnover")
		w := httptest.NewRecorder()

		handler.QueueExport(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)
		accepted := decodeBody[handlers.JobAccepted](t, w)
		assert.Equal(t, "queued", accepted.Status)

		require.Len(t, enq.tasks, 1)
		assert.Equal(t, workers.TypeReportExport, enq.tasks[0].Type())

		var payload workers.ReportExportPayload
		require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
		assert.Equal(t, accepted.JobID, payload.JobID)
		assert.Equal(t, "turnover", payload.Report)
		assert.True(t, payload.ReceivedOnly)
	})

	t.Run("enqueue_failure_marks_job_failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		jobs := mocks.NewMockJobRepository(ctrl)
		enq := &fakeEnqueuer{err: errors.New("redis down")}

		jobs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		jobs.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), domain.JobStatusFailed, "enqueue failed").Return(nil)

		handler := newReportHandler(mocks.NewMockReportService(ctrl), jobs, enq, false)
		req := httptest.NewRequest("POST", "/api/v1/reports/stock-valuation/exports", nil)
		req.SetPathValue("name", "stock-valuation")
		w := httptest.NewRecorder()

		handler.QueueExport(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

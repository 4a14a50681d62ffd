// internal/handlers/report.go
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ammerola/stockflow/internal/adapters/spreadsheet"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/workers"
)

// DegradedHeader is set on report responses built from partial data
const DegradedHeader = "X-Report-Degraded"

// ReportHandler serves reports and report exports
type ReportHandler struct {
	reports      ports.ReportService
	queue        jobQueue
	receivedOnly bool
	logger       *slog.Logger
}

// NewReportHandler creates a new report handler. receivedOnly is the
// turnover default when the query does not set it.
func NewReportHandler(
	reports ports.ReportService,
	jobs ports.JobRepository,
	enqueuer TaskEnqueuer,
	queueConfig JobQueueConfig,
	receivedOnly bool,
	logger *slog.Logger,
) *ReportHandler {
	logger = logger.With(slog.String("handler", "report"))
	return &ReportHandler{
		reports:      reports,
		queue:        newJobQueue(jobs, enqueuer, queueConfig, logger),
		receivedOnly: receivedOnly,
		logger:       logger,
	}
}

// StockValuation handles GET /api/v1/reports/stock-valuation
func (h *ReportHandler) StockValuation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.reports.StockValuation(ctx)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to build stock valuation report")
		return
	}

	setDegraded(w, report.ReportMeta)
	respondJSON(w, http.StatusOK, report)
}

// Turnover handles GET /api/v1/reports/turnover
func (h *ReportHandler) Turnover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts, err := h.turnoverOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reports.Turnover(ctx, opts)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to build turnover report")
		return
	}

	setDegraded(w, report.ReportMeta)
	respondJSON(w, http.StatusOK, report)
}

// ExportXLSX handles GET /api/v1/reports/{name}/export.xlsx
func (h *ReportHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	if !spreadsheet.ValidReport(name) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown report %q", name))
		return
	}

	opts, err := h.turnoverOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	export, err := spreadsheet.ExportReport(ctx, h.reports, name, opts)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to generate export")
		return
	}

	w.Header().Set("Content-Type", spreadsheet.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if export.Degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(export.Data); err != nil {
		h.logger.ErrorContext(ctx, "failed to write export",
			slog.String("report", name),
			slog.String("error", err.Error()))
	}
}

// QueueExport handles POST /api/v1/reports/{name}/exports
func (h *ReportHandler) QueueExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	if !spreadsheet.ValidReport(name) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown report %q", name))
		return
	}

	opts, err := h.turnoverOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := workers.ReportExportPayload{
		JobID:        uuid.New().String(),
		Report:       name,
		ReceivedOnly: opts.ReceivedOnly,
	}
	if _, err := h.queue.submit(ctx, payload.JobID, domain.JobTypeExport, workers.TypeReportExport, payload); err != nil {
		h.logger.ErrorContext(ctx, "failed to queue export",
			slog.String("report", name),
			slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "Failed to queue export job")
		return
	}

	respondJSON(w, http.StatusAccepted, JobAccepted{
		JobID:   payload.JobID,
		Status:  string(domain.JobStatusQueued),
		Message: "Report export has been queued",
	})
}

func (h *ReportHandler) turnoverOptions(r *http.Request) (domain.TurnoverOptions, error) {
	opts := domain.TurnoverOptions{ReceivedOnly: h.receivedOnly}
	if raw := r.URL.Query().Get("received_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, domain.NewValidationError("received_only must be a boolean")
		}
		opts.ReceivedOnly = v
	}
	return opts, nil
}

func setDegraded(w http.ResponseWriter, meta domain.ReportMeta) {
	if meta.Degraded {
		w.Header().Set(DegradedHeader, "true")
	}
}

// internal/workers/report_export_processor.go
package workers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/adapters/spreadsheet"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// ReportExportResult is stored on the job when an export finishes
type ReportExportResult struct {
	Report    string    `json:"report"`
	ObjectKey string    `json:"objectKey"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Degraded  bool      `json:"degraded"`
	Bytes     int       `json:"bytes"`
}

// ReportExportProcessor renders reports and uploads them to object storage
type ReportExportProcessor struct {
	reports   ports.ReportService
	storage   ports.ObjectStorage
	jobs      jobTracker
	urlExpiry time.Duration
	logger    *slog.Logger
}

// NewReportExportProcessor creates a new report export processor
func NewReportExportProcessor(
	reports ports.ReportService,
	storage ports.ObjectStorage,
	jobs ports.JobRepository,
	urlExpiry time.Duration,
	logger *slog.Logger,
) *ReportExportProcessor {
	logger = logger.With(slog.String("processor", "report_export"))
	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}
	return &ReportExportProcessor{
		reports:   reports,
		storage:   storage,
		jobs:      jobTracker{jobs: jobs, logger: logger},
		urlExpiry: urlExpiry,
		logger:    logger,
	}
}

// ProcessReportExport handles TypeReportExport tasks
func (p *ReportExportProcessor) ProcessReportExport(ctx context.Context, t *asynq.Task) error {
	var payload ReportExportPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "exporting report",
		slog.String("job_id", payload.JobID),
		slog.String("report", payload.Report))
	p.jobs.start(ctx, payload.JobID)

	result, err := p.export(ctx, payload)
	if err != nil {
		err = permanent(err)
		p.jobs.failIfFinal(ctx, payload.JobID, err)
		return err
	}

	p.jobs.complete(ctx, payload.JobID, domain.JobStatusCompleted, result)

	p.logger.InfoContext(ctx, "report exported",
		slog.String("job_id", payload.JobID),
		slog.String("key", result.ObjectKey),
		slog.Bool("degraded", result.Degraded))
	return nil
}

func (p *ReportExportProcessor) export(ctx context.Context, payload ReportExportPayload) (*ReportExportResult, error) {
	export, err := spreadsheet.ExportReport(ctx, p.reports, payload.Report,
		domain.TurnoverOptions{ReceivedOnly: payload.ReceivedOnly})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	key := spreadsheet.ObjectKey(payload.Report, payload.JobID, now)
	if err := p.storage.Upload(ctx, key, bytes.NewReader(export.Data), spreadsheet.ContentType); err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	url, err := p.storage.GetPresignedURL(ctx, key, p.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign export: %w", err)
	}

	return &ReportExportResult{
		Report:    payload.Report,
		ObjectKey: key,
		URL:       url,
		ExpiresAt: now.Add(p.urlExpiry).UTC(),
		Degraded:  export.Degraded,
		Bytes:     len(export.Data),
	}, nil
}

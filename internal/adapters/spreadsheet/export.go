// internal/adapters/spreadsheet/export.go
package spreadsheet

import (
	"context"
	"fmt"
	"time"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// Export is a rendered report workbook
type Export struct {
	Report   string
	Filename string
	Data     []byte
	Degraded bool
}

// ValidReport reports whether name is an exportable report
func ValidReport(name string) bool {
	return name == domain.ReportStockValuation || name == domain.ReportTurnover
}

// ExportReport builds the named report and renders it as a workbook.
// A degraded report is still rendered; the flag is carried on the result.
func ExportReport(ctx context.Context, reports ports.ReportService, name string, opts domain.TurnoverOptions) (*Export, error) {
	var (
		data []byte
		meta domain.ReportMeta
		err  error
	)

	switch name {
	case domain.ReportStockValuation:
		r, rerr := reports.StockValuation(ctx)
		if rerr != nil {
			return nil, rerr
		}
		meta = r.ReportMeta
		data, err = WriteStockValuation(r)
	case domain.ReportTurnover:
		r, rerr := reports.Turnover(ctx, opts)
		if rerr != nil {
			return nil, rerr
		}
		meta = r.ReportMeta
		data, err = WriteTurnover(r)
	default:
		return nil, domain.NewValidationError("unknown report %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s report: %w", name, err)
	}

	return &Export{
		Report:   name,
		Filename: fmt.Sprintf("%s_%s.xlsx", name, meta.GeneratedAt.UTC().Format("20060102_150405")),
		Data:     data,
		Degraded: meta.Degraded,
	}, nil
}

// ObjectKey returns the storage key for an export produced by job id
func ObjectKey(name, jobID string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%s/%s.xlsx", at.UTC().Format("2006/01/02"), name, jobID)
}

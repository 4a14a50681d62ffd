// internal/workers/pdf_processor.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/ledongthuc/pdf"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// POImportResult is stored on the job when an invoice import finishes
type POImportResult struct {
	PurchaseOrderID int64    `json:"purchaseOrderId"`
	SupplierID      int64    `json:"supplierId"`
	Reference       string   `json:"reference,omitempty"`
	Items           int      `json:"items"`
	Errors          []string `json:"errors,omitempty"`
	ProcessingTime  string   `json:"processingTime"`
}

// Invoice is what a supplier invoice yields once its text is parsed
type Invoice struct {
	SupplierName string
	Number       string
	Items        []domain.POItem
	Errors       []string
}

// PDFProcessor turns supplier invoice PDFs into purchase orders
type PDFProcessor struct {
	orders    ports.PurchaseOrderService
	suppliers ports.SupplierRepository
	jobs      jobTracker
	extract   func(ctx context.Context, path string) ([]string, error)
	logger    *slog.Logger
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(
	orders ports.PurchaseOrderService,
	suppliers ports.SupplierRepository,
	jobs ports.JobRepository,
	logger *slog.Logger,
) *PDFProcessor {
	logger = logger.With(slog.String("processor", "pdf"))
	p := &PDFProcessor{
		orders:    orders,
		suppliers: suppliers,
		jobs:      jobTracker{jobs: jobs, logger: logger},
		logger:    logger,
	}
	p.extract = p.extractText
	return p
}

// ProcessPOImport handles TypePOImport tasks
func (p *PDFProcessor) ProcessPOImport(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload POImportPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "processing supplier invoice",
		slog.String("job_id", payload.JobID),
		slog.Int64("warehouse_id", payload.WarehouseID))
	p.jobs.start(ctx, payload.JobID)

	result, err := p.importInvoice(ctx, payload)
	if err != nil {
		err = permanent(err)
		p.jobs.failIfFinal(ctx, payload.JobID, err)
		if errors.Is(err, asynq.SkipRetry) {
			removeUpload(payload.FilePath)
		}
		return err
	}

	result.ProcessingTime = time.Since(start).String()
	status := domain.JobStatusCompleted
	if len(result.Errors) > 0 {
		status = domain.JobStatusCompletedWithErrors
	}
	p.jobs.complete(ctx, payload.JobID, status, result)
	removeUpload(payload.FilePath)

	p.logger.InfoContext(ctx, "supplier invoice imported",
		slog.String("job_id", payload.JobID),
		slog.Int64("po_id", result.PurchaseOrderID),
		slog.Int("items", result.Items),
		slog.Int("skipped_lines", len(result.Errors)))
	return nil
}

func (p *PDFProcessor) importInvoice(ctx context.Context, payload POImportPayload) (*POImportResult, error) {
	lines, err := p.extract(ctx, payload.FilePath)
	if err != nil {
		return nil, domain.NewValidationError("failed to read invoice: %v", err)
	}

	invoice := ParseInvoice(lines)
	if len(invoice.Items) == 0 {
		return nil, domain.NewValidationError("no line items found in invoice")
	}

	supplierID := payload.SupplierID
	if supplierID == 0 {
		if invoice.SupplierName == "" {
			return nil, domain.NewValidationError("invoice names no supplier and none was given")
		}
		supplier, err := p.suppliers.FindByName(ctx, invoice.SupplierName)
		if err != nil {
			return nil, err
		}
		if supplier == nil {
			return nil, domain.NewNotFoundError("supplier", invoice.SupplierName)
		}
		supplierID = supplier.ID
	}

	po, err := p.orders.Create(ctx, ports.CreatePurchaseOrderInput{
		SupplierID:  supplierID,
		WarehouseID: payload.WarehouseID,
		Reference:   invoice.Number,
		Items:       invoice.Items,
	})
	if err != nil {
		return nil, err
	}

	return &POImportResult{
		PurchaseOrderID: po.ID,
		SupplierID:      supplierID,
		Reference:       po.Reference,
		Items:           len(po.Items),
		Errors:          invoice.Errors,
	}, nil
}

func (p *PDFProcessor) extractText(ctx context.Context, filePath string) ([]string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var lines []string
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.WarnContext(ctx, "failed to extract text from page",
				slog.Int("page", pageNum),
				slog.String("error", err.Error()))
			continue
		}
		lines = append(lines, strings.Split(text, "\n")...)
	}
	return lines, nil
}

var (
	invoiceSupplierRe = regexp.MustCompile(`(?i)^supplier\s*:\s*(.+)$`)
	invoiceNumberRe   = regexp.MustCompile(`(?i)invoice\s*(?:#|no\.?|number)\s*:?\s*([A-Z0-9][A-Z0-9-]*)`)
	invoiceHeaderRe   = regexp.MustCompile(`(?i)(PRODUCT.*QTY|ITEM.*QUANTITY)`)
	invoiceFooterRe   = regexp.MustCompile(`(?i)^(SUBTOTAL|TOTAL)\b`)
	invoiceItemRe     = regexp.MustCompile(`^(?:SKU-)?(\d+)\s+(?:(.+?)\s+)?(\d+)((?:\s+\$?\s*\d{1,3}(?:,\d{3})*\.\d{2})*)$`)
)

// ParseInvoice reads the supplier, invoice number and line items from the
// text of an invoice. Items sit between a header naming product and
// quantity columns and a SUBTOTAL or TOTAL footer; each starts with the
// product id and carries the quantity before any prices.
func ParseInvoice(lines []string) Invoice {
	var (
		inv     Invoice
		inItems bool
	)

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !inItems {
			if m := invoiceSupplierRe.FindStringSubmatch(line); m != nil && inv.SupplierName == "" {
				inv.SupplierName = strings.TrimSpace(m[1])
				continue
			}
			if m := invoiceNumberRe.FindStringSubmatch(line); m != nil && inv.Number == "" {
				inv.Number = m[1]
				continue
			}
			if invoiceHeaderRe.MatchString(line) {
				inItems = true
			}
			continue
		}

		if invoiceFooterRe.MatchString(line) {
			break
		}

		m := invoiceItemRe.FindStringSubmatch(line)
		if m == nil {
			inv.Errors = append(inv.Errors, fmt.Sprintf("line %d: unrecognised item %q", i+1, line))
			continue
		}

		productID, _ := strconv.ParseInt(m[1], 10, 64)
		qty, _ := strconv.ParseInt(m[3], 10, 64)
		if productID <= 0 || qty <= 0 {
			inv.Errors = append(inv.Errors, fmt.Sprintf("line %d: product and quantity must be positive", i+1))
			continue
		}
		inv.Items = append(inv.Items, domain.POItem{ProductID: productID, Quantity: qty})
	}

	return inv
}

// removeUpload deletes the job's private copy of an uploaded file
func removeUpload(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

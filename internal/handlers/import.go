// internal/handlers/import.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/workers"
)

const multipartOverhead = 1 << 20

// ImportConfig limits uploads and names where they are kept until processed
type ImportConfig struct {
	UploadDir     string
	PDFMaxBytes   int64
	ExcelMaxBytes int64
	JobQueue      JobQueueConfig
}

// ImportHandler handles file imports
type ImportHandler struct {
	jobs   ports.JobRepository
	queue  jobQueue
	config ImportConfig
	logger *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(jobs ports.JobRepository, enqueuer TaskEnqueuer, config ImportConfig, logger *slog.Logger) *ImportHandler {
	logger = logger.With(slog.String("handler", "import"))
	if config.PDFMaxBytes <= 0 {
		config.PDFMaxBytes = 20 << 20
	}
	if config.ExcelMaxBytes <= 0 {
		config.ExcelMaxBytes = 20 << 20
	}
	return &ImportHandler{
		jobs:   jobs,
		queue:  newJobQueue(jobs, enqueuer, config.JobQueue, logger),
		config: config,
		logger: logger,
	}
}

// ImportPurchaseOrderPDF handles POST /api/v1/import/purchase-orders/pdf
func (h *ImportHandler) ImportPurchaseOrderPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path, status, err := h.saveUpload(w, r, h.config.PDFMaxBytes, "application/pdf")
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	payload := workers.POImportPayload{JobID: uuid.New().String(), FilePath: path}
	if payload.WarehouseID, err = formID(r, "warehouse_id", true); err != nil {
		os.Remove(path)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.SupplierID, err = formID(r, "supplier_id", false); err != nil {
		os.Remove(path)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.enqueue(ctx, w, path, payload.JobID, domain.JobTypePOImport, workers.TypePOImport, payload,
		"Invoice import has been queued for processing")
}

// ImportStockExcel handles POST /api/v1/import/stock/excel
func (h *ImportHandler) ImportStockExcel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path, status, err := h.saveUpload(w, r, h.config.ExcelMaxBytes, "application/zip")
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	payload := workers.StockImportPayload{JobID: uuid.New().String(), FilePath: path}
	h.enqueue(ctx, w, path, payload.JobID, domain.JobTypeStockImport, workers.TypeStockImport, payload,
		"Stock count import has been queued for processing")
}

// ImportStatus handles GET /api/v1/import/status/{jobId}
func (h *ImportHandler) ImportStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("jobId")

	if _, err := uuid.Parse(jobID); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID format")
		return
	}

	job, err := h.jobs.FindByID(ctx, jobID)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to get job status")
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

func (h *ImportHandler) enqueue(ctx context.Context, w http.ResponseWriter, path, jobID, jobType, taskType string, payload any, message string) {
	if _, err := h.queue.submit(ctx, jobID, jobType, taskType, payload); err != nil {
		os.Remove(path)
		h.logger.ErrorContext(ctx, "failed to queue import",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "Failed to queue import job")
		return
	}

	respondJSON(w, http.StatusAccepted, JobAccepted{
		JobID:   jobID,
		Status:  string(domain.JobStatusQueued),
		Message: message,
	})
}

// saveUpload copies the "file" form field into the upload directory after
// checking its size and sniffed content type. It returns the saved path, or
// the status to respond with on failure.
func (h *ImportHandler) saveUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, wantType string) (string, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d MB", maxBytes>>20)
		}
		return "", http.StatusBadRequest, errors.New("Failed to parse form data")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", http.StatusBadRequest, errors.New("File is required")
	}
	defer file.Close()

	if header.Size > maxBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d MB", maxBytes>>20)
	}
	if got := sniff(file); got != wantType {
		return "", http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type %s", got)
	}

	if err := os.MkdirAll(h.config.UploadDir, 0o755); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create upload directory",
			slog.String("error", err.Error()))
		return "", http.StatusInternalServerError, errors.New("Failed to prepare upload")
	}

	path := filepath.Join(h.config.UploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(header.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create upload file",
			slog.String("error", err.Error()))
		return "", http.StatusInternalServerError, errors.New("Failed to save upload")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		h.logger.ErrorContext(r.Context(), "failed to save upload",
			slog.String("error", err.Error()))
		return "", http.StatusInternalServerError, errors.New("Failed to save upload")
	}

	h.logger.DebugContext(r.Context(), "upload saved",
		slog.String("path", path),
		slog.Int64("bytes", header.Size))
	return path, http.StatusOK, nil
}

// sniff detects the content type from the first bytes and rewinds
func sniff(file multipart.File) string {
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	file.Seek(0, io.SeekStart)
	ct := http.DetectContentType(buf[:n])
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

func formID(r *http.Request, name string, required bool) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		if required {
			return 0, domain.NewValidationError("%s is required", name)
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("%s must be a positive integer", name)
	}
	return id, nil
}

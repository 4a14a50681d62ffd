// internal/handlers/stock.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// IdempotencyKeyHeader names the header that makes an adjustment replay-safe
const IdempotencyKeyHeader = "Idempotency-Key"

// StockHandler handles stock ledger requests
type StockHandler struct {
	ledger ports.StockLedgerService
	logger *slog.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(ledger ports.StockLedgerService, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		logger: logger.With(slog.String("handler", "stock")),
	}
}

// AdjustStockRequest is the body of an adjustment
type AdjustStockRequest struct {
	ProductID   int64  `json:"productId"`
	WarehouseID int64  `json:"warehouseId"`
	Delta       *int64 `json:"delta"`
}

// Validate checks the request shape; the ledger validates the rest
func (r *AdjustStockRequest) Validate() error {
	if r.Delta == nil {
		return domain.NewValidationError("delta is required")
	}
	return nil
}

// ToDomain converts the request to an adjustment
func (r *AdjustStockRequest) ToDomain() domain.StockAdjustment {
	return domain.StockAdjustment{
		ProductID:   r.ProductID,
		WarehouseID: r.WarehouseID,
		Delta:       *r.Delta,
	}
}

// Adjust handles POST /api/v1/stock/adjustments
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AdjustStockRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	entry, err := h.ledger.AdjustIdempotent(ctx, idemKey, req.ToDomain())
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to adjust stock")
		return
	}

	h.logger.InfoContext(ctx, "stock adjusted",
		slog.String("key", entry.Key().String()),
		slog.Int64("delta", *req.Delta),
		slog.Int64("quantity", entry.Quantity))

	respondJSON(w, http.StatusOK, entry)
}

// Get handles GET /api/v1/stock/{productId}/{warehouseId}
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := pathID(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	warehouseID, err := pathID(r, "warehouseId")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.ledger.Get(ctx, domain.StockKey{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to retrieve stock")
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

// List handles GET /api/v1/stock
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := queryID(r, "product_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	warehouseID, err := queryID(r, "warehouse_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.ledger.List(ctx, domain.StockFilter{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to list stock")
		return
	}
	if entries == nil {
		entries = []*domain.StockEntry{}
	}

	respondJSON(w, http.StatusOK, entries)
}

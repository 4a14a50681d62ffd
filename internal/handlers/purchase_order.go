// internal/handlers/purchase_order.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// PurchaseOrderHandler handles purchase order requests
type PurchaseOrderHandler struct {
	orders ports.PurchaseOrderService
	logger *slog.Logger
}

// NewPurchaseOrderHandler creates a new purchase order handler
func NewPurchaseOrderHandler(orders ports.PurchaseOrderService, logger *slog.Logger) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		orders: orders,
		logger: logger.With(slog.String("handler", "purchase_order")),
	}
}

// CreatePurchaseOrderRequest is the body of an order placement
type CreatePurchaseOrderRequest struct {
	SupplierID  int64           `json:"supplierId"`
	WarehouseID int64           `json:"warehouseId"`
	Reference   string          `json:"reference,omitempty"`
	Items       []domain.POItem `json:"items"`
}

// ToInput converts the request to a service input
func (r *CreatePurchaseOrderRequest) ToInput() ports.CreatePurchaseOrderInput {
	return ports.CreatePurchaseOrderInput{
		SupplierID:  r.SupplierID,
		WarehouseID: r.WarehouseID,
		Reference:   strings.TrimSpace(r.Reference),
		Items:       r.Items,
	}
}

// Create handles POST /api/v1/purchase-orders
func (h *PurchaseOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePurchaseOrderRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err.Error())
		return
	}

	po, err := h.orders.Create(ctx, req.ToInput())
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to create purchase order")
		return
	}

	respondJSON(w, http.StatusCreated, po)
}

// List handles GET /api/v1/purchase-orders. status accepts a comma
// separated list.
func (h *PurchaseOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parsePurchaseOrderFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to list purchase orders")
		return
	}
	if orders == nil {
		orders = []*domain.PurchaseOrder{}
	}

	respondJSON(w, http.StatusOK, orders)
}

// Get handles GET /api/v1/purchase-orders/{id}
func (h *PurchaseOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	po, err := h.orders.Get(ctx, id)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to retrieve purchase order")
		return
	}

	respondJSON(w, http.StatusOK, po)
}

// Receive handles PATCH /api/v1/purchase-orders/{id}/receive
func (h *PurchaseOrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	po, err := h.orders.Receive(ctx, id)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to receive purchase order")
		return
	}

	respondJSON(w, http.StatusOK, po)
}

func parsePurchaseOrderFilter(r *http.Request) (domain.PurchaseOrderFilter, error) {
	var filter domain.PurchaseOrderFilter

	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.POStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.IsValid() {
				return filter, domain.NewValidationError("unknown status %q", part)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	supplierID, err := queryID(r, "supplier_id")
	if err != nil {
		return filter, err
	}
	filter.SupplierID = supplierID

	return filter, nil
}

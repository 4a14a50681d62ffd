// internal/handlers/directory.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// DirectoryHandler serves warehouses and suppliers
type DirectoryHandler struct {
	warehouses ports.WarehouseService
	suppliers  ports.SupplierService
	logger     *slog.Logger
}

// NewDirectoryHandler creates a new directory handler
func NewDirectoryHandler(warehouses ports.WarehouseService, suppliers ports.SupplierService, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		warehouses: warehouses,
		suppliers:  suppliers,
		logger:     logger.With(slog.String("handler", "directory")),
	}
}

// WarehouseRequest is the body of a warehouse create or update
type WarehouseRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// SupplierRequest is the body of a supplier create
type SupplierRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ListWarehouses handles GET /api/v1/warehouses
func (h *DirectoryHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	warehouses, err := h.warehouses.List(ctx)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to list warehouses")
		return
	}
	if warehouses == nil {
		warehouses = []*domain.Warehouse{}
	}

	respondJSON(w, http.StatusOK, warehouses)
}

// CreateWarehouse handles POST /api/v1/warehouses
func (h *DirectoryHandler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WarehouseRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err.Error())
		return
	}

	warehouse := &domain.Warehouse{Name: req.Name, Location: req.Location}
	if err := h.warehouses.Create(ctx, warehouse); err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to create warehouse")
		return
	}

	h.logger.InfoContext(ctx, "warehouse created",
		slog.Int64("warehouse_id", warehouse.ID),
		slog.String("name", warehouse.Name))

	respondJSON(w, http.StatusCreated, warehouse)
}

// UpdateWarehouse handles PUT /api/v1/warehouses/{id}
func (h *DirectoryHandler) UpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req WarehouseRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err.Error())
		return
	}

	warehouse := &domain.Warehouse{ID: id, Name: req.Name, Location: req.Location}
	if err := h.warehouses.Update(ctx, warehouse); err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to update warehouse")
		return
	}

	respondJSON(w, http.StatusOK, warehouse)
}

// ListSuppliers handles GET /api/v1/suppliers
func (h *DirectoryHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	suppliers, err := h.suppliers.List(ctx)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to list suppliers")
		return
	}
	if suppliers == nil {
		suppliers = []*domain.Supplier{}
	}

	respondJSON(w, http.StatusOK, suppliers)
}

// CreateSupplier handles POST /api/v1/suppliers
func (h *DirectoryHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SupplierRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err.Error())
		return
	}

	supplier := &domain.Supplier{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if err := h.suppliers.Create(ctx, supplier); err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to create supplier")
		return
	}

	h.logger.InfoContext(ctx, "supplier created",
		slog.Int64("supplier_id", supplier.ID),
		slog.String("name", supplier.Name))

	respondJSON(w, http.StatusCreated, supplier)
}

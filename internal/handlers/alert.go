// internal/handlers/alert.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// AlertHandler handles alert and threshold requests
type AlertHandler struct {
	alerts ports.AlertService
	logger *slog.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts ports.AlertService, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: logger.With(slog.String("handler", "alert")),
	}
}

// SignalResponse reports what the evaluator did with a signal
type SignalResponse struct {
	Action string `json:"action"`
}

// ThresholdRequest is the body of a threshold update
type ThresholdRequest struct {
	ProductID   int64 `json:"productId"`
	WarehouseID int64 `json:"warehouseId"`
	Threshold   int64 `json:"threshold"`
}

// List handles GET /api/v1/alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter domain.AlertFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = domain.AlertStatus(strings.ToUpper(raw))
		if !filter.Status.IsValid() {
			respondError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
	}

	var err error
	if filter.ProductID, err = queryID(r, "product_id"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.WarehouseID, err = queryID(r, "warehouse_id"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.alerts.ListAll(ctx, filter)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}

	respondJSON(w, http.StatusOK, alerts)
}

// Signal handles POST /api/v1/alerts/signals
func (h *AlertHandler) Signal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var signal domain.StockSignal
	if status, err := decodeJSON(w, r, &signal); err != nil {
		respondError(w, status, err.Error())
		return
	}

	action, err := h.alerts.Handle(ctx, signal)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to evaluate signal")
		return
	}

	respondJSON(w, http.StatusOK, SignalResponse{Action: action.String()})
}

// Resolve handles PATCH /api/v1/alerts/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.alerts.Resolve(ctx, id)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to resolve alert")
		return
	}

	h.logger.InfoContext(ctx, "alert resolved manually", slog.Int64("alert_id", id))
	respondJSON(w, http.StatusOK, alert)
}

// ListThresholds handles GET /api/v1/alerts/thresholds
func (h *AlertHandler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	thresholds, err := h.alerts.ListThresholds(ctx)
	if err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to list thresholds")
		return
	}
	if thresholds == nil {
		thresholds = []*domain.Threshold{}
	}

	respondJSON(w, http.StatusOK, thresholds)
}

// SetThreshold handles PUT /api/v1/alerts/thresholds
func (h *AlertHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ThresholdRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err.Error())
		return
	}

	threshold := &domain.Threshold{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Threshold:   req.Threshold,
	}
	if err := h.alerts.SetThreshold(ctx, threshold); err != nil {
		respondDomainError(ctx, w, h.logger, err, "Failed to set threshold")
		return
	}

	respondJSON(w, http.StatusOK, threshold)
}

// internal/handlers/routes.go
package handlers

import (
	"net/http"
)

// APIPrefix is the versioned route prefix
const APIPrefix = "/api/v1"

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Health         *HealthHandler
	Stock          *StockHandler
	Directory      *DirectoryHandler
	PurchaseOrders *PurchaseOrderHandler
	Alerts         *AlertHandler
	Reports        *ReportHandler
	Imports        *ImportHandler
}

// RegisterRoutes mounts every route on mux
func RegisterRoutes(mux *http.ServeMux, h Handlers) {
	mux.HandleFunc("GET /health", h.Health.Health)
	mux.HandleFunc("GET /ready", h.Health.Readiness)

	mux.HandleFunc("POST "+APIPrefix+"/stock/adjustments", h.Stock.Adjust)
	mux.HandleFunc("GET "+APIPrefix+"/stock", h.Stock.List)
	mux.HandleFunc("GET "+APIPrefix+"/stock/{productId}/{warehouseId}", h.Stock.Get)

	mux.HandleFunc("GET "+APIPrefix+"/warehouses", h.Directory.ListWarehouses)
	mux.HandleFunc("POST "+APIPrefix+"/warehouses", h.Directory.CreateWarehouse)
	mux.HandleFunc("PUT "+APIPrefix+"/warehouses/{id}", h.Directory.UpdateWarehouse)
	mux.HandleFunc("GET "+APIPrefix+"/suppliers", h.Directory.ListSuppliers)
	mux.HandleFunc("POST "+APIPrefix+"/suppliers", h.Directory.CreateSupplier)

	mux.HandleFunc("POST "+APIPrefix+"/purchase-orders", h.PurchaseOrders.Create)
	mux.HandleFunc("GET "+APIPrefix+"/purchase-orders", h.PurchaseOrders.List)
	mux.HandleFunc("GET "+APIPrefix+"/purchase-orders/{id}", h.PurchaseOrders.Get)
	mux.HandleFunc("PATCH "+APIPrefix+"/purchase-orders/{id}/receive", h.PurchaseOrders.Receive)

	mux.HandleFunc("GET "+APIPrefix+"/alerts", h.Alerts.List)
	mux.HandleFunc("POST "+APIPrefix+"/alerts/signals", h.Alerts.Signal)
	mux.HandleFunc("PATCH "+APIPrefix+"/alerts/{id}/resolve", h.Alerts.Resolve)
	mux.HandleFunc("GET "+APIPrefix+"/alerts/thresholds", h.Alerts.ListThresholds)
	mux.HandleFunc("PUT "+APIPrefix+"/alerts/thresholds", h.Alerts.SetThreshold)

	mux.HandleFunc("GET "+APIPrefix+"/reports/stock-valuation", h.Reports.StockValuation)
	mux.HandleFunc("GET "+APIPrefix+"/reports/turnover", h.Reports.Turnover)
	mux.HandleFunc("GET "+APIPrefix+"/reports/{name}/export.xlsx", h.Reports.ExportXLSX)
	mux.HandleFunc("POST "+APIPrefix+"/reports/{name}/exports", h.Reports.QueueExport)

	mux.HandleFunc("POST "+APIPrefix+"/import/purchase-orders/pdf", h.Imports.ImportPurchaseOrderPDF)
	mux.HandleFunc("POST "+APIPrefix+"/import/stock/excel", h.Imports.ImportStockExcel)
	mux.HandleFunc("GET "+APIPrefix+"/import/status/{jobId}", h.Imports.ImportStatus)
}

// internal/core/ports/services.go
package ports

import (
	"context"

	"github.com/ammerola/stockflow/internal/core/domain"
)

// StockReader is the read side of the stock ledger
type StockReader interface {
	List(ctx context.Context, filter domain.StockFilter) ([]*domain.StockEntry, error)
}

// StockLedgerService defines the application port for stock
type StockLedgerService interface {
	StockReader
	Adjust(ctx context.Context, adj domain.StockAdjustment) (*domain.StockEntry, error)
	// AdjustIdempotent replays the stored result when key was already used.
	AdjustIdempotent(ctx context.Context, key string, adj domain.StockAdjustment) (*domain.StockEntry, error)
	Get(ctx context.Context, key domain.StockKey) (*domain.StockEntry, error)
}

// PurchaseOrderReader is the read side of the purchase order lifecycle
type PurchaseOrderReader interface {
	List(ctx context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error)
}

// CreatePurchaseOrderInput carries the fields needed to place an order
type CreatePurchaseOrderInput struct {
	SupplierID  int64
	WarehouseID int64
	Reference   string
	Items       []domain.POItem
}

// PurchaseOrderService defines the application port for purchase orders
type PurchaseOrderService interface {
	PurchaseOrderReader
	Create(ctx context.Context, in CreatePurchaseOrderInput) (*domain.PurchaseOrder, error)
	Receive(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
	Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
}

// AlertService defines the application port for the alert evaluator
type AlertService interface {
	Handle(ctx context.Context, signal domain.StockSignal) (domain.AlertAction, error)
	ListAll(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error)
	Resolve(ctx context.Context, id int64) (*domain.Alert, error)
	SetThreshold(ctx context.Context, t *domain.Threshold) error
	ListThresholds(ctx context.Context) ([]*domain.Threshold, error)
}

// ReportService defines the application port for reports
type ReportService interface {
	StockValuation(ctx context.Context) (*domain.StockValuationReport, error)
	Turnover(ctx context.Context, opts domain.TurnoverOptions) (*domain.TurnoverReport, error)
}

// WarehouseService manages warehouses
type WarehouseService interface {
	Create(ctx context.Context, w *domain.Warehouse) error
	Update(ctx context.Context, w *domain.Warehouse) error
	List(ctx context.Context) ([]*domain.Warehouse, error)
}

// SupplierService manages suppliers
type SupplierService interface {
	Create(ctx context.Context, s *domain.Supplier) error
	List(ctx context.Context) ([]*domain.Supplier, error)
}

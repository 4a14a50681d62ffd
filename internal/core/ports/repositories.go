// internal/core/ports/repositories.go
package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ammerola/stockflow/internal/core/domain"
)

// StockRepository defines the persistence port for the stock ledger.
// Lookups return nil, nil when the entry does not exist.
type StockRepository interface {
	// Adjust applies delta to the key atomically, creating the entry at 0
	// first when needed. It returns domain.ErrInsufficientStock when the
	// result would be negative.
	Adjust(ctx context.Context, adj domain.StockAdjustment) (*domain.StockEntry, error)
	Get(ctx context.Context, key domain.StockKey) (*domain.StockEntry, error)
	List(ctx context.Context, filter domain.StockFilter) ([]*domain.StockEntry, error)
}

// PurchaseOrderRepository defines the persistence port for purchase orders
type PurchaseOrderRepository interface {
	Create(ctx context.Context, po *domain.PurchaseOrder) error
	FindByID(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
	List(ctx context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error)
	// MarkReceived flips CREATED to RECEIVED and reports whether this call
	// performed the transition.
	MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error)
}

// AlertRepository defines the persistence port for alerts
type AlertRepository interface {
	// Raise inserts an open alert unless one is already open for the key,
	// and reports whether a row was inserted.
	Raise(ctx context.Context, alert *domain.Alert) (bool, error)
	FindOpen(ctx context.Context, key domain.StockKey) (*domain.Alert, error)
	FindByID(ctx context.Context, id int64) (*domain.Alert, error)
	ResolveOpen(ctx context.Context, key domain.StockKey, at time.Time) (bool, error)
	Resolve(ctx context.Context, id int64, at time.Time) (bool, error)
	List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error)
	DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error)
}

// ThresholdRepository stores per-key reorder thresholds
type ThresholdRepository interface {
	Get(ctx context.Context, key domain.StockKey) (*domain.Threshold, error)
	Upsert(ctx context.Context, t *domain.Threshold) error
	List(ctx context.Context) ([]*domain.Threshold, error)
}

// WarehouseRepository stores warehouses
type WarehouseRepository interface {
	Create(ctx context.Context, w *domain.Warehouse) error
	Update(ctx context.Context, w *domain.Warehouse) error
	FindByID(ctx context.Context, id int64) (*domain.Warehouse, error)
	List(ctx context.Context) ([]*domain.Warehouse, error)
}

// SupplierRegistry answers whether a supplier exists
type SupplierRegistry interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// SupplierRepository stores suppliers
type SupplierRepository interface {
	SupplierRegistry
	Create(ctx context.Context, s *domain.Supplier) error
	FindByName(ctx context.Context, name string) (*domain.Supplier, error)
	List(ctx context.Context) ([]*domain.Supplier, error)
}

// JobRepository tracks async import and export jobs
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMsg string) error
	Complete(ctx context.Context, id string, status domain.JobStatus, result json.RawMessage) error
	FindByID(ctx context.Context, id string) (*domain.Job, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TxRepositories are repositories bound to one transaction
type TxRepositories struct {
	Stock          StockRepository
	PurchaseOrders PurchaseOrderRepository
}

// TxRunner runs fn inside a transaction, committing when it returns nil
// and rolling back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

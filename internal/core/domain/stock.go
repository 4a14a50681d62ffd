// internal/core/domain/stock.go
package domain

import (
	"fmt"
	"time"
)

// StockKey identifies one quantity counter
type StockKey struct {
	ProductID   int64 `json:"productId"`
	WarehouseID int64 `json:"warehouseId"`
}

// String renders the key for logs and cache keys
func (k StockKey) String() string {
	return fmt.Sprintf("%d:%d", k.ProductID, k.WarehouseID)
}

// Validate checks that both ids are positive
func (k StockKey) Validate() error {
	if k.ProductID <= 0 {
		return NewValidationError("productId must be positive")
	}
	if k.WarehouseID <= 0 {
		return NewValidationError("warehouseId must be positive")
	}
	return nil
}

// StockEntry is the quantity held for a product in a warehouse
type StockEntry struct {
	ProductID   int64     `json:"productId"`
	WarehouseID int64     `json:"warehouseId"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Key returns the ledger key of the entry
func (s *StockEntry) Key() StockKey {
	return StockKey{ProductID: s.ProductID, WarehouseID: s.WarehouseID}
}

// StockAdjustment is a signed change to one key. When Expected is set the
// change applies only while the entry still holds that quantity (an absent
// entry holds 0), and ErrStockChanged is returned otherwise.
type StockAdjustment struct {
	ProductID   int64  `json:"productId"`
	WarehouseID int64  `json:"warehouseId"`
	Delta       int64  `json:"delta"`
	Expected    *int64 `json:"-"`
}

// Key returns the ledger key the adjustment targets
func (a StockAdjustment) Key() StockKey {
	return StockKey{ProductID: a.ProductID, WarehouseID: a.WarehouseID}
}

// Validate checks the adjustment target; any delta, including zero, is allowed
func (a StockAdjustment) Validate() error {
	return a.Key().Validate()
}

// StockFilter narrows stock listings; zero fields are ignored
type StockFilter struct {
	ProductID   int64
	WarehouseID int64
}

// ErrInsufficientStock is returned when an adjustment would take a
// quantity below zero.
var ErrInsufficientStock = &Error{Kind: KindValidation, Message: "insufficient stock"}

// ErrStockChanged is returned when a guarded adjustment finds a quantity
// other than the one it expected.
var ErrStockChanged = &Error{Kind: KindInvalidState, Message: "stock changed since it was read"}

// SumByProduct totals quantities across warehouses per product
func SumByProduct(entries []*StockEntry) map[int64]int64 {
	totals := make(map[int64]int64, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		totals[e.ProductID] += e.Quantity
	}
	return totals
}

// internal/core/domain/purchase_order.go
package domain

import (
	"time"
)

// POStatus is the lifecycle state of a purchase order
type POStatus string

const (
	POStatusCreated  POStatus = "CREATED"
	POStatusReceived POStatus = "RECEIVED"
)

// IsValid reports whether the status is a known value
func (s POStatus) IsValid() bool {
	return s == POStatusCreated || s == POStatusReceived
}

// POItem is a single order line
type POItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// PurchaseOrder is an order placed with a supplier for delivery into one warehouse
type PurchaseOrder struct {
	ID          int64      `json:"id"`
	SupplierID  int64      `json:"supplierId"`
	WarehouseID int64      `json:"warehouseId"`
	Status      POStatus   `json:"status"`
	OrderDate   time.Time  `json:"date"`
	ReceivedAt  *time.Time `json:"receivedAt,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Items       []POItem   `json:"items"`
}

// NewPurchaseOrder builds a validated order in the CREATED state
func NewPurchaseOrder(supplierID, warehouseID int64, items []POItem) (*PurchaseOrder, error) {
	po := &PurchaseOrder{
		SupplierID:  supplierID,
		WarehouseID: warehouseID,
		Status:      POStatusCreated,
		OrderDate:   time.Now().UTC(),
		Items:       items,
	}
	if err := po.Validate(); err != nil {
		return nil, err
	}
	return po, nil
}

// Validate checks ids and line items
func (po *PurchaseOrder) Validate() error {
	if po.SupplierID <= 0 {
		return NewValidationError("supplierId must be positive")
	}
	if po.WarehouseID <= 0 {
		return NewValidationError("warehouseId must be positive")
	}
	if len(po.Items) == 0 {
		return NewValidationError("purchase order must have at least one item")
	}
	for i, item := range po.Items {
		if item.ProductID <= 0 {
			return NewValidationError("items[%d]: productId must be positive", i)
		}
		if item.Quantity <= 0 {
			return NewValidationError("items[%d]: quantity must be positive", i)
		}
	}
	return nil
}

// CanReceive returns an InvalidState error unless the order is CREATED
func (po *PurchaseOrder) CanReceive() error {
	if po.Status != POStatusCreated {
		return NewInvalidStateError("purchase order %d is already %s", po.ID, po.Status)
	}
	return nil
}

// Adjustments returns the stock increments that receiving the order
// applies, merged per product so each key is touched once.
func (po *PurchaseOrder) Adjustments() []StockAdjustment {
	index := make(map[int64]int, len(po.Items))
	out := make([]StockAdjustment, 0, len(po.Items))
	for _, item := range po.Items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Delta += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, StockAdjustment{
			ProductID:   item.ProductID,
			WarehouseID: po.WarehouseID,
			Delta:       item.Quantity,
		})
	}
	return out
}

// PurchaseOrderFilter narrows order listings
type PurchaseOrderFilter struct {
	Statuses   []POStatus
	SupplierID int64
}

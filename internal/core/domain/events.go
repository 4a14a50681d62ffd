// internal/core/domain/events.go
package domain

import (
	"time"
)

// Stock change causes
const (
	CauseAdjustment = "adjustment"
	CauseReceipt    = "po_receipt"
)

// StockChangedEvent is published after a committed change to one key
type StockChangedEvent struct {
	ProductID   int64     `json:"productId"`
	WarehouseID int64     `json:"warehouseId"`
	Delta       int64     `json:"delta"`
	Quantity    int64     `json:"quantity"`
	Cause       string    `json:"cause"`
	Reference   string    `json:"reference,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewStockChangedEvent builds an event from the resulting entry
func NewStockChangedEvent(entry *StockEntry, delta int64, cause, reference string) StockChangedEvent {
	return StockChangedEvent{
		ProductID:   entry.ProductID,
		WarehouseID: entry.WarehouseID,
		Delta:       delta,
		Quantity:    entry.Quantity,
		Cause:       cause,
		Reference:   reference,
		OccurredAt:  time.Now().UTC(),
	}
}

// Signal converts the event into an alert evaluator input
func (e StockChangedEvent) Signal() StockSignal {
	return StockSignal{
		ProductID:       e.ProductID,
		WarehouseID:     e.WarehouseID,
		CurrentQuantity: e.Quantity,
	}
}

// internal/core/domain/alert.go
package domain

import (
	"time"
)

// AlertKind describes why an alert was raised
type AlertKind string

const (
	AlertKindLowStock   AlertKind = "LOW_STOCK"
	AlertKindOutOfStock AlertKind = "OUT_OF_STOCK"
)

// AlertStatus is the persisted status of an alert
type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "OPEN"
	AlertStatusResolved AlertStatus = "RESOLVED"
)

// IsValid reports whether the status is a known value
func (s AlertStatus) IsValid() bool {
	return s == AlertStatusOpen || s == AlertStatusResolved
}

// AlertState is the per-key alert state used by the evaluator
type AlertState string

const (
	AlertStateNone     AlertState = "NO_ALERT"
	AlertStateOpen     AlertState = "OPEN"
	AlertStateResolved AlertState = "RESOLVED"
)

// Alert records a low stock condition for one key
type Alert struct {
	ID          int64       `json:"id"`
	ProductID   int64       `json:"productId"`
	WarehouseID int64       `json:"warehouseId"`
	Kind        AlertKind   `json:"kind"`
	Status      AlertStatus `json:"status"`
	Quantity    int64       `json:"quantity"`
	Threshold   int64       `json:"threshold"`
	CreatedAt   time.Time   `json:"createdAt"`
	ResolvedAt  *time.Time  `json:"resolvedAt,omitempty"`
}

// Key returns the ledger key the alert is about
func (a *Alert) Key() StockKey {
	return StockKey{ProductID: a.ProductID, WarehouseID: a.WarehouseID}
}

// CanResolve returns an InvalidState error unless the alert is open
func (a *Alert) CanResolve() error {
	if a.Status != AlertStatusOpen {
		return NewInvalidStateError("alert %d is already %s", a.ID, a.Status)
	}
	return nil
}

// StockSignal is a quantity observation for one key
type StockSignal struct {
	ProductID       int64 `json:"productId"`
	WarehouseID     int64 `json:"warehouseId"`
	CurrentQuantity int64 `json:"currentQuantity"`
}

// Key returns the ledger key of the signal
func (s StockSignal) Key() StockKey {
	return StockKey{ProductID: s.ProductID, WarehouseID: s.WarehouseID}
}

// Validate checks the signal target and quantity
func (s StockSignal) Validate() error {
	if err := s.Key().Validate(); err != nil {
		return err
	}
	if s.CurrentQuantity < 0 {
		return NewValidationError("currentQuantity cannot be negative")
	}
	return nil
}

// Threshold is the reorder level configured for a key
type Threshold struct {
	ProductID   int64     `json:"productId"`
	WarehouseID int64     `json:"warehouseId"`
	Threshold   int64     `json:"threshold"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the key and a non-negative level
func (t *Threshold) Validate() error {
	if err := (StockKey{ProductID: t.ProductID, WarehouseID: t.WarehouseID}).Validate(); err != nil {
		return err
	}
	if t.Threshold < 0 {
		return NewValidationError("threshold cannot be negative")
	}
	return nil
}

// AlertAction is the outcome of evaluating a signal
type AlertAction int

const (
	AlertActionNone AlertAction = iota
	AlertActionRaise
	AlertActionResolve
)

func (a AlertAction) String() string {
	switch a {
	case AlertActionRaise:
		return "raise"
	case AlertActionResolve:
		return "resolve"
	default:
		return "none"
	}
}

// EvaluateAlert decides what to do with a quantity observation given the
// current alert state for the key. Quantity at or below the threshold
// raises unless an alert is already open; quantity above it resolves an
// open alert.
func EvaluateAlert(state AlertState, quantity, threshold int64) AlertAction {
	low := quantity <= threshold
	switch {
	case low && state != AlertStateOpen:
		return AlertActionRaise
	case !low && state == AlertStateOpen:
		return AlertActionResolve
	default:
		return AlertActionNone
	}
}

// AlertKindFor picks the alert kind for a low quantity
func AlertKindFor(quantity int64) AlertKind {
	if quantity <= 0 {
		return AlertKindOutOfStock
	}
	return AlertKindLowStock
}

// AlertFilter narrows alert listings
type AlertFilter struct {
	Status      AlertStatus
	ProductID   int64
	WarehouseID int64
}

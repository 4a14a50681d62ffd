// internal/core/domain/report.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report sources
const (
	SourceProducts       = "products"
	SourceStock          = "stock"
	SourcePurchaseOrders = "purchase_orders"
)

// Report names
const (
	ReportStockValuation = "stock-valuation"
	ReportTurnover       = "turnover"
)

// StockValuationRow values one product's total stock
type StockValuationRow struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalValue  decimal.Decimal `json:"totalValue"`
}

// TurnoverRow totals ordered quantity and revenue per product
type TurnoverRow struct {
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	QuantitySold int64           `json:"quantitySold"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// ReportMeta describes how complete a report is. Degraded is set when any
// source failed and its slice was treated as empty.
type ReportMeta struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Degraded    bool              `json:"degraded"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// MarkFailed records a failed source
func (m *ReportMeta) MarkFailed(source string, err error) {
	if m.Errors == nil {
		m.Errors = make(map[string]string)
	}
	m.Degraded = true
	m.Errors[source] = err.Error()
}

// StockValuationReport is the valuation view
type StockValuationReport struct {
	ReportMeta
	Rows       []StockValuationRow `json:"rows"`
	TotalValue decimal.Decimal     `json:"totalValue"`
}

// TurnoverReport is the turnover view
type TurnoverReport struct {
	ReportMeta
	ReceivedOnly bool            `json:"receivedOnly"`
	Rows         []TurnoverRow   `json:"rows"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// TurnoverOptions selects which orders count as sold. Every order counts
// unless ReceivedOnly narrows it to delivered ones.
type TurnoverOptions struct {
	ReceivedOnly bool
}

// Statuses returns the order statuses counted by the report
func (o TurnoverOptions) Statuses() []POStatus {
	if o.ReceivedOnly {
		return []POStatus{POStatusReceived}
	}
	return []POStatus{POStatusCreated, POStatusReceived}
}

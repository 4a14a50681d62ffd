// internal/adapters/events/events.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// Task types and event names
const (
	TypeStockChanged = "stock:changed"
	TypeAlertRaised  = "alert:raised"
)

// Handler consumes one stock change event
type Handler func(ctx context.Context, event domain.StockChangedEvent) error

// Encode serializes an event for transport
func Encode(event domain.StockChangedEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stock event: %w", err)
	}
	return data, nil
}

// Decode parses an event payload
func Decode(data []byte) (domain.StockChangedEvent, error) {
	var event domain.StockChangedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal stock event: %w", err)
	}
	return event, nil
}

// InlinePublisher hands events straight to a handler in the caller's goroutine.
// Used when no broker is configured and in tests.
type InlinePublisher struct {
	handler Handler
	logger  *slog.Logger
}

var _ ports.StockEventPublisher = (*InlinePublisher)(nil)

// NewInlinePublisher creates a publisher that calls handler directly
func NewInlinePublisher(handler Handler, logger *slog.Logger) *InlinePublisher {
	return &InlinePublisher{
		handler: handler,
		logger:  logger.With(slog.String("publisher", "inline")),
	}
}

// PublishStockChanged runs the handler for each event and returns the first error
func (p *InlinePublisher) PublishStockChanged(ctx context.Context, events ...domain.StockChangedEvent) error {
	var firstErr error
	for _, e := range events {
		if err := p.handler(ctx, e); err != nil {
			p.logger.WarnContext(ctx, "inline stock event handler failed",
				slog.Int64("product_id", e.ProductID),
				slog.Int64("warehouse_id", e.WarehouseID),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close is a no-op
func (p *InlinePublisher) Close() error { return nil }

// NopPublisher drops every event
type NopPublisher struct{}

var _ ports.StockEventPublisher = NopPublisher{}

func (NopPublisher) PublishStockChanged(context.Context, ...domain.StockChangedEvent) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

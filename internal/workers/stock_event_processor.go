// internal/workers/stock_event_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/adapters/events"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// StockEventProcessor feeds stock change events to the alert evaluator
type StockEventProcessor struct {
	alerts ports.AlertService
	stock  ports.StockRepository
	logger *slog.Logger
}

// NewStockEventProcessor creates a new stock event processor. Events are
// evaluated against the quantity stock holds when they are handled.
func NewStockEventProcessor(alerts ports.AlertService, stock ports.StockRepository, logger *slog.Logger) *StockEventProcessor {
	return &StockEventProcessor{
		alerts: alerts,
		stock:  stock,
		logger: logger.With(slog.String("processor", "stock_events")),
	}
}

// Handle evaluates one event. It matches events.Handler so the same logic
// serves the inline and kafka backends.
func (p *StockEventProcessor) Handle(ctx context.Context, event domain.StockChangedEvent) error {
	signal, err := p.currentSignal(ctx, event)
	if err != nil {
		return err
	}

	action, err := p.alerts.Handle(ctx, signal)
	if err != nil {
		return fmt.Errorf("failed to evaluate stock change for %s: %w", signal.Key(), err)
	}

	p.logger.DebugContext(ctx, "stock change evaluated",
		slog.String("key", signal.Key().String()),
		slog.String("cause", event.Cause),
		slog.Int64("event_quantity", event.Quantity),
		slog.Int64("quantity", signal.CurrentQuantity),
		slog.String("action", action.String()))
	return nil
}

// currentSignal replaces the event quantity with the ledger's. Events can
// arrive late or out of order, so the quantity they carry may be stale.
func (p *StockEventProcessor) currentSignal(ctx context.Context, event domain.StockChangedEvent) (domain.StockSignal, error) {
	signal := event.Signal()
	if signal.Key().Validate() != nil {
		return signal, nil
	}

	entry, err := p.stock.Get(ctx, signal.Key())
	if err != nil {
		return signal, fmt.Errorf("failed to read stock for %s: %w", signal.Key(), err)
	}
	if entry != nil {
		signal.CurrentQuantity = entry.Quantity
	}
	return signal, nil
}

// ProcessStockChanged handles events.TypeStockChanged tasks
func (p *StockEventProcessor) ProcessStockChanged(ctx context.Context, t *asynq.Task) error {
	event, err := events.Decode(t.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return permanent(p.Handle(ctx, event))
}

// internal/adapters/events/asynq.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// AsynqPublisher enqueues stock change events as asynq tasks for the worker
type AsynqPublisher struct {
	client *asynq.Client
	queue  string
	logger *slog.Logger
}

var _ ports.StockEventPublisher = (*AsynqPublisher)(nil)

// NewAsynqPublisher creates a publisher on the given queue
func NewAsynqPublisher(client *asynq.Client, queue string, logger *slog.Logger) *AsynqPublisher {
	if queue == "" {
		queue = "critical"
	}
	return &AsynqPublisher{
		client: client,
		queue:  queue,
		logger: logger.With(slog.String("publisher", "asynq")),
	}
}

// PublishStockChanged enqueues one task per event
func (p *AsynqPublisher) PublishStockChanged(ctx context.Context, events ...domain.StockChangedEvent) error {
	var errs []error
	for _, e := range events {
		payload, err := Encode(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		task := asynq.NewTask(TypeStockChanged, payload)
		info, err := p.client.EnqueueContext(ctx, task,
			asynq.Queue(p.queue),
			asynq.MaxRetry(5),
			asynq.Timeout(30*time.Second),
			asynq.Retention(time.Hour),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to enqueue stock event %d:%d: %w", e.ProductID, e.WarehouseID, err))
			continue
		}

		p.logger.DebugContext(ctx, "stock event enqueued",
			slog.String("task_id", info.ID),
			slog.Int64("product_id", e.ProductID),
			slog.Int64("warehouse_id", e.WarehouseID),
			slog.Int64("quantity", e.Quantity))
	}
	return errors.Join(errs...)
}

// Close releases the asynq client
func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}

// AsynqAlertNotifier queues a notification task for each raised alert
type AsynqAlertNotifier struct {
	client *asynq.Client
	logger *slog.Logger
}

var _ ports.AlertNotifier = (*AsynqAlertNotifier)(nil)

// NewAsynqAlertNotifier creates a notifier that enqueues on the default queue
func NewAsynqAlertNotifier(client *asynq.Client, logger *slog.Logger) *AsynqAlertNotifier {
	return &AsynqAlertNotifier{
		client: client,
		logger: logger.With(slog.String("publisher", "alert_notifier")),
	}
}

// AlertRaised enqueues the alert. The task id is derived from the alert id
// so a repeated call does not queue a second notification.
func (n *AsynqAlertNotifier) AlertRaised(ctx context.Context, alert *domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = n.client.EnqueueContext(ctx, asynq.NewTask(TypeAlertRaised, payload),
		asynq.Queue("default"),
		asynq.TaskID(fmt.Sprintf("alert-%d", alert.ID)),
		asynq.MaxRetry(3),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("failed to enqueue alert notification: %w", err)
	}
	return nil
}

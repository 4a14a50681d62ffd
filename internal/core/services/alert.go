// internal/core/services/alert.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// AlertService evaluates stock signals against thresholds and keeps at most
// one open alert per key.
type AlertService struct {
	alerts           ports.AlertRepository
	thresholds       ports.ThresholdRepository
	notifier         ports.AlertNotifier
	defaultThreshold int64
	logger           *slog.Logger
	now              func() time.Time
}

var _ ports.AlertService = (*AlertService)(nil)

// NewAlertService creates a new alert service. notifier may be nil.
func NewAlertService(
	alerts ports.AlertRepository,
	thresholds ports.ThresholdRepository,
	notifier ports.AlertNotifier,
	defaultThreshold int64,
	logger *slog.Logger,
) *AlertService {
	return &AlertService{
		alerts:           alerts,
		thresholds:       thresholds,
		notifier:         notifier,
		defaultThreshold: defaultThreshold,
		logger:           logger.With(slog.String("service", "alert")),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Handle evaluates one quantity observation
func (s *AlertService) Handle(ctx context.Context, signal domain.StockSignal) (domain.AlertAction, error) {
	if err := signal.Validate(); err != nil {
		return domain.AlertActionNone, err
	}
	key := signal.Key()

	threshold, err := s.thresholdFor(ctx, key)
	if err != nil {
		return domain.AlertActionNone, err
	}

	open, err := s.alerts.FindOpen(ctx, key)
	if err != nil {
		return domain.AlertActionNone, err
	}
	state := domain.AlertStateNone
	if open != nil {
		state = domain.AlertStateOpen
	}

	action := domain.EvaluateAlert(state, signal.CurrentQuantity, threshold)
	switch action {
	case domain.AlertActionRaise:
		alert := &domain.Alert{
			ProductID:   signal.ProductID,
			WarehouseID: signal.WarehouseID,
			Kind:        domain.AlertKindFor(signal.CurrentQuantity),
			Status:      domain.AlertStatusOpen,
			Quantity:    signal.CurrentQuantity,
			Threshold:   threshold,
			CreatedAt:   s.now(),
		}
		inserted, err := s.alerts.Raise(ctx, alert)
		if err != nil {
			return domain.AlertActionNone, err
		}
		if !inserted {
			// a concurrent signal raised it first
			return domain.AlertActionNone, nil
		}

		s.logger.InfoContext(ctx, "alert raised",
			slog.Int64("alert_id", alert.ID),
			slog.String("key", key.String()),
			slog.String("kind", string(alert.Kind)),
			slog.Int64("quantity", signal.CurrentQuantity),
			slog.Int64("threshold", threshold))
		s.notify(ctx, alert)

	case domain.AlertActionResolve:
		resolved, err := s.alerts.ResolveOpen(ctx, key, s.now())
		if err != nil {
			return domain.AlertActionNone, err
		}
		if !resolved {
			return domain.AlertActionNone, nil
		}

		s.logger.InfoContext(ctx, "alert resolved",
			slog.String("key", key.String()),
			slog.Int64("quantity", signal.CurrentQuantity))
	}

	return action, nil
}

func (s *AlertService) thresholdFor(ctx context.Context, key domain.StockKey) (int64, error) {
	t, err := s.thresholds.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to load threshold: %w", err)
	}
	if t == nil {
		return s.defaultThreshold, nil
	}
	return t.Threshold, nil
}

func (s *AlertService) notify(ctx context.Context, alert *domain.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AlertRaised(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "failed to queue alert notification",
			slog.Int64("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}
}

// ListAll returns alerts newest first
func (s *AlertService) ListAll(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("unknown status %q", filter.Status)
	}
	return s.alerts.List(ctx, filter)
}

// Resolve closes an open alert by hand
func (s *AlertService) Resolve(ctx context.Context, id int64) (*domain.Alert, error) {
	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, domain.NewNotFoundError("alert", id)
	}
	if err := alert.CanResolve(); err != nil {
		return nil, err
	}

	at := s.now()
	ok, err := s.alerts.Resolve(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewInvalidStateError("alert %d is already %s", id, domain.AlertStatusResolved)
	}

	alert.Status = domain.AlertStatusResolved
	alert.ResolvedAt = &at

	s.logger.InfoContext(ctx, "alert resolved manually", slog.Int64("alert_id", id))
	return alert, nil
}

// SetThreshold stores the reorder level for a key
func (s *AlertService) SetThreshold(ctx context.Context, t *domain.Threshold) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.thresholds.Upsert(ctx, t); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "threshold set",
		slog.Int64("product_id", t.ProductID),
		slog.Int64("warehouse_id", t.WarehouseID),
		slog.Int64("threshold", t.Threshold))
	return nil
}

// ListThresholds returns all configured thresholds
func (s *AlertService) ListThresholds(ctx context.Context) ([]*domain.Threshold, error) {
	return s.thresholds.List(ctx)
}

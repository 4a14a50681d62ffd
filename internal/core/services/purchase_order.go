// internal/core/services/purchase_order.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// PurchaseOrderService handles the purchase order lifecycle
type PurchaseOrderService struct {
	repo      ports.PurchaseOrderRepository
	suppliers ports.SupplierRegistry
	tx        ports.TxRunner
	publisher ports.StockEventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.PurchaseOrderService = (*PurchaseOrderService)(nil)

// NewPurchaseOrderService creates a new purchase order service
func NewPurchaseOrderService(
	repo ports.PurchaseOrderRepository,
	suppliers ports.SupplierRegistry,
	tx ports.TxRunner,
	publisher ports.StockEventPublisher,
	logger *slog.Logger,
) *PurchaseOrderService {
	return &PurchaseOrderService{
		repo:      repo,
		suppliers: suppliers,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With(slog.String("service", "purchase_order")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create places a new order in the CREATED state
func (s *PurchaseOrderService) Create(ctx context.Context, in ports.CreatePurchaseOrderInput) (*domain.PurchaseOrder, error) {
	po, err := domain.NewPurchaseOrder(in.SupplierID, in.WarehouseID, in.Items)
	if err != nil {
		return nil, err
	}
	po.Reference = strings.TrimSpace(in.Reference)

	exists, err := s.suppliers.Exists(ctx, in.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to check supplier: %w", err)
	}
	if !exists {
		return nil, domain.NewNotFoundError("supplier", in.SupplierID)
	}

	if err := s.repo.Create(ctx, po); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "purchase order created",
		slog.Int64("po_id", po.ID),
		slog.Int64("supplier_id", po.SupplierID),
		slog.Int64("warehouse_id", po.WarehouseID),
		slog.Int("items", len(po.Items)))

	return po, nil
}

// Receive marks the order received and books its items into stock in a
// single transaction. Only the first of several concurrent or repeated
// calls succeeds; the others see InvalidState.
func (s *PurchaseOrderService) Receive(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("id must be positive")
	}

	var (
		received *domain.PurchaseOrder
		events   []domain.StockChangedEvent
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.TxRepositories) error {
		events = events[:0]

		flipped, err := repos.PurchaseOrders.MarkReceived(ctx, id, s.now())
		if err != nil {
			return err
		}

		po, err := repos.PurchaseOrders.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if po == nil {
			return domain.NewNotFoundError("purchase order", id)
		}
		if !flipped {
			if err := po.CanReceive(); err != nil {
				return err
			}
			return domain.NewInvalidStateError("purchase order %d could not be received", id)
		}

		ref := po.Reference
		if ref == "" {
			ref = fmt.Sprintf("PO-%d", po.ID)
		}
		for _, adj := range po.Adjustments() {
			entry, err := repos.Stock.Adjust(ctx, adj)
			if err != nil {
				return fmt.Errorf("failed to book product %d: %w", adj.ProductID, err)
			}
			events = append(events, domain.NewStockChangedEvent(entry, adj.Delta, domain.CauseReceipt, ref))
		}

		received = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "purchase order received",
		slog.Int64("po_id", received.ID),
		slog.Int("keys_touched", len(events)))

	publishAfterCommit(ctx, s.publisher, s.logger, events...)

	return received, nil
}

// Get returns an order by id
func (s *PurchaseOrderService) Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	po, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, domain.NewNotFoundError("purchase order", id)
	}
	return po, nil
}

// List returns orders matching filter
func (s *PurchaseOrderService) List(ctx context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error) {
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, domain.NewValidationError("unknown status %q", st)
		}
	}
	return s.repo.List(ctx, filter)
}

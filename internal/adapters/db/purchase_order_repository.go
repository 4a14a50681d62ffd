// internal/adapters/db/purchase_order_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// purchaseOrderRepository implements ports.PurchaseOrderRepository
type purchaseOrderRepository struct {
	db     querier
	logger *slog.Logger
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *Database, logger *slog.Logger) ports.PurchaseOrderRepository {
	return newPurchaseOrderRepository(db, logger)
}

func newPurchaseOrderRepository(q querier, logger *slog.Logger) *purchaseOrderRepository {
	return &purchaseOrderRepository{
		db:     q,
		logger: logger.With(slog.String("repository", "purchase_order")),
	}
}

// withTx runs fn in a new transaction when q is the pool, or directly when
// q already is a transaction.
func withTx(ctx context.Context, q querier, fn func(querier) error) error {
	if d, ok := q.(*Database); ok {
		return d.Transaction(ctx, func(tx pgx.Tx) error { return fn(tx) })
	}
	return fn(q)
}

// Create inserts the order and its items
func (r *purchaseOrderRepository) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	err := withTx(ctx, r.db, func(q querier) error {
		query := `
			INSERT INTO purchase_orders (supplier_id, warehouse_id, status, order_date, reference)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))
			RETURNING id`

		if err := q.QueryRow(ctx, query,
			po.SupplierID, po.WarehouseID, po.Status, po.OrderDate, po.Reference,
		).Scan(&po.ID); err != nil {
			return fmt.Errorf("failed to insert purchase order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range po.Items {
			batch.Queue(`
				INSERT INTO purchase_order_items (purchase_order_id, line_no, product_id, quantity)
				VALUES ($1, $2, $3, $4)`,
				po.ID, i+1, item.ProductID, item.Quantity)
		}

		tx, ok := q.(pgx.Tx)
		if !ok {
			return fmt.Errorf("purchase order items require a transaction")
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for i := range po.Items {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return domain.NewNotFoundError("supplier", po.SupplierID)
		}
		return storageError("failed to create purchase order", err)
	}

	r.logger.DebugContext(ctx, "purchase order saved",
		slog.Int64("id", po.ID),
		slog.Int("items", len(po.Items)))

	return nil
}

// FindByID returns the order with its items, or nil when absent
func (r *purchaseOrderRepository) FindByID(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	query := `
		SELECT id, supplier_id, warehouse_id, status, order_date, received_at, COALESCE(reference, '')
		FROM purchase_orders
		WHERE id = $1`

	po, err := scanPurchaseOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to find purchase order", err)
	}

	if err := r.attachItems(ctx, []*domain.PurchaseOrder{po}); err != nil {
		return nil, err
	}

	return po, nil
}

// List returns orders matching the filter, newest first
func (r *purchaseOrderRepository) List(ctx context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error) {
	qb := squirrel.Select(
		"id", "supplier_id", "warehouse_id", "status", "order_date", "received_at", "COALESCE(reference, '')",
	).From("purchase_orders").
		PlaceholderFormat(squirrel.Dollar)

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		qb = qb.Where(squirrel.Eq{"status": statuses})
	}
	if filter.SupplierID > 0 {
		qb = qb.Where(squirrel.Eq{"supplier_id": filter.SupplierID})
	}
	qb = qb.OrderBy("order_date DESC", "id DESC")

	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, storageError("failed to build purchase order query", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError("failed to query purchase orders", err)
	}

	orders, err := scanMany(rows, func(row pgx.Rows) (*domain.PurchaseOrder, error) {
		return scanPurchaseOrder(row)
	})
	if err != nil {
		return nil, storageError("failed to scan purchase orders", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// MarkReceived flips the status only when the order is still CREATED
func (r *purchaseOrderRepository) MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE purchase_orders
		SET status = $2, received_at = $3
		WHERE id = $1 AND status = $4`

	tag, err := r.db.Exec(ctx, query, id, domain.POStatusReceived, at, domain.POStatusCreated)
	if err != nil {
		return false, storageError("failed to mark purchase order received", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *purchaseOrderRepository) attachItems(ctx context.Context, orders []*domain.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*domain.PurchaseOrder, len(orders))
	for i, po := range orders {
		ids[i] = po.ID
		po.Items = make([]domain.POItem, 0)
		byID[po.ID] = po
	}

	query := `
		SELECT purchase_order_id, product_id, quantity
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY purchase_order_id, line_no`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return storageError("failed to query purchase order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item domain.POItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return storageError("failed to scan purchase order item", err)
		}
		if po, ok := byID[orderID]; ok {
			po.Items = append(po.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return storageError("failed to iterate purchase order items", err)
	}

	return nil
}

func scanPurchaseOrder(row pgx.Row) (*domain.PurchaseOrder, error) {
	po := &domain.PurchaseOrder{}
	if err := row.Scan(
		&po.ID, &po.SupplierID, &po.WarehouseID, &po.Status,
		&po.OrderDate, &po.ReceivedAt, &po.Reference,
	); err != nil {
		return nil, err
	}
	return po, nil
}

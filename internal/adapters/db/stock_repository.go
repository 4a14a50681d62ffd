// internal/adapters/db/stock_repository.go
package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// stockRepository implements ports.StockRepository
type stockRepository struct {
	db     querier
	logger *slog.Logger
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *Database, logger *slog.Logger) ports.StockRepository {
	return newStockRepository(db, logger)
}

func newStockRepository(q querier, logger *slog.Logger) *stockRepository {
	return &stockRepository{
		db:     q,
		logger: logger.With(slog.String("repository", "stock")),
	}
}

const stockNonNegativeConstraint = "stock_quantity_non_negative"

// adjustStockSQL creates the row at 0 and applies the delta in one
// statement. The row lock taken by ON CONFLICT serializes writers on the
// same key only. The WHERE clause makes an overdraw update zero rows.
const adjustStockSQL = `
	INSERT INTO stock (product_id, warehouse_id, quantity, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (product_id, warehouse_id) DO UPDATE
		SET quantity = stock.quantity + EXCLUDED.quantity,
		    updated_at = NOW()
		WHERE stock.quantity + EXCLUDED.quantity >= 0
	RETURNING product_id, warehouse_id, quantity, updated_at`

// guardedInsertSQL is adjustStockSQL for an entry expected to hold 0. A row
// created concurrently must still hold 0 for the update to apply.
const guardedInsertSQL = `
	INSERT INTO stock (product_id, warehouse_id, quantity, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (product_id, warehouse_id) DO UPDATE
		SET quantity = stock.quantity + EXCLUDED.quantity,
		    updated_at = NOW()
		WHERE stock.quantity = 0
	RETURNING product_id, warehouse_id, quantity, updated_at`

// guardedUpdateSQL applies the delta only while the row holds $4
const guardedUpdateSQL = `
	UPDATE stock
	SET quantity = quantity + $3,
	    updated_at = NOW()
	WHERE product_id = $1 AND warehouse_id = $2 AND quantity = $4
	RETURNING product_id, warehouse_id, quantity, updated_at`

// Adjust applies a delta to one key atomically
func (r *stockRepository) Adjust(ctx context.Context, adj domain.StockAdjustment) (*domain.StockEntry, error) {
	row := r.adjustRow(ctx, adj)
	entry, err := scanStockEntry(row)
	if err != nil {
		// A negative result trips the CHECK constraint. Otherwise no row
		// means the WHERE clause filtered the update.
		switch {
		case pgErrorCode(err) == pgCheckViolation && pgConstraint(err) == stockNonNegativeConstraint:
			return nil, domain.ErrInsufficientStock
		case errors.Is(err, pgx.ErrNoRows) && adj.Expected != nil:
			return nil, domain.ErrStockChanged
		case errors.Is(err, pgx.ErrNoRows):
			return nil, domain.ErrInsufficientStock
		}
		return nil, storageError("failed to adjust stock", err)
	}

	r.logger.DebugContext(ctx, "stock adjusted",
		slog.String("key", adj.Key().String()),
		slog.Int64("delta", adj.Delta),
		slog.Int64("quantity", entry.Quantity))

	return entry, nil
}

func (r *stockRepository) adjustRow(ctx context.Context, adj domain.StockAdjustment) pgx.Row {
	switch {
	case adj.Expected == nil:
		return r.db.QueryRow(ctx, adjustStockSQL, adj.ProductID, adj.WarehouseID, adj.Delta)
	case *adj.Expected == 0:
		return r.db.QueryRow(ctx, guardedInsertSQL, adj.ProductID, adj.WarehouseID, adj.Delta)
	default:
		return r.db.QueryRow(ctx, guardedUpdateSQL, adj.ProductID, adj.WarehouseID, adj.Delta, *adj.Expected)
	}
}

// Get returns the entry for a key, or nil when absent
func (r *stockRepository) Get(ctx context.Context, key domain.StockKey) (*domain.StockEntry, error) {
	query := `
		SELECT product_id, warehouse_id, quantity, updated_at
		FROM stock
		WHERE product_id = $1 AND warehouse_id = $2`

	entry, err := scanStockEntry(r.db.QueryRow(ctx, query, key.ProductID, key.WarehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to get stock", err)
	}

	return entry, nil
}

// List returns entries matching the filter ordered by key
func (r *stockRepository) List(ctx context.Context, filter domain.StockFilter) ([]*domain.StockEntry, error) {
	qb := squirrel.Select("product_id", "warehouse_id", "quantity", "updated_at").
		From("stock").
		PlaceholderFormat(squirrel.Dollar)

	if filter.ProductID > 0 {
		qb = qb.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.WarehouseID > 0 {
		qb = qb.Where(squirrel.Eq{"warehouse_id": filter.WarehouseID})
	}
	qb = qb.OrderBy("product_id", "warehouse_id")

	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, storageError("failed to build stock query", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError("failed to query stock", err)
	}

	entries, err := scanMany(rows, func(row pgx.Rows) (*domain.StockEntry, error) {
		return scanStockEntry(row)
	})
	if err != nil {
		return nil, storageError("failed to scan stock", err)
	}

	return entries, nil
}

func scanStockEntry(row pgx.Row) (*domain.StockEntry, error) {
	entry := &domain.StockEntry{}
	if err := row.Scan(&entry.ProductID, &entry.WarehouseID, &entry.Quantity, &entry.UpdatedAt); err != nil {
		return nil, err
	}
	return entry, nil
}

// internal/adapters/db/threshold_repository.go
package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// thresholdRepository implements ports.ThresholdRepository
type thresholdRepository struct {
	db     querier
	logger *slog.Logger
}

// NewThresholdRepository creates a new threshold repository
func NewThresholdRepository(db *Database, logger *slog.Logger) ports.ThresholdRepository {
	return &thresholdRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "threshold")),
	}
}

// Get returns the threshold configured for a key, or nil
func (r *thresholdRepository) Get(ctx context.Context, key domain.StockKey) (*domain.Threshold, error) {
	query := `
		SELECT product_id, warehouse_id, threshold, updated_at
		FROM stock_thresholds
		WHERE product_id = $1 AND warehouse_id = $2`

	t := &domain.Threshold{}
	err := r.db.QueryRow(ctx, query, key.ProductID, key.WarehouseID).
		Scan(&t.ProductID, &t.WarehouseID, &t.Threshold, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to get threshold", err)
	}

	return t, nil
}

// Upsert sets the threshold for a key
func (r *thresholdRepository) Upsert(ctx context.Context, t *domain.Threshold) error {
	query := `
		INSERT INTO stock_thresholds (product_id, warehouse_id, threshold, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (product_id, warehouse_id) DO UPDATE
			SET threshold = EXCLUDED.threshold, updated_at = NOW()
		RETURNING updated_at`

	if err := r.db.QueryRow(ctx, query, t.ProductID, t.WarehouseID, t.Threshold).Scan(&t.UpdatedAt); err != nil {
		return storageError("failed to upsert threshold", err)
	}

	return nil
}

// List returns all configured thresholds
func (r *thresholdRepository) List(ctx context.Context) ([]*domain.Threshold, error) {
	rows, err := r.db.Query(ctx, `
		SELECT product_id, warehouse_id, threshold, updated_at
		FROM stock_thresholds
		ORDER BY product_id, warehouse_id`)
	if err != nil {
		return nil, storageError("failed to query thresholds", err)
	}

	thresholds, err := scanMany(rows, func(row pgx.Rows) (*domain.Threshold, error) {
		t := &domain.Threshold{}
		if err := row.Scan(&t.ProductID, &t.WarehouseID, &t.Threshold, &t.UpdatedAt); err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, storageError("failed to scan thresholds", err)
	}

	return thresholds, nil
}

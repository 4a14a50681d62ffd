// internal/adapters/db/alert_repository.go
package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// alertRepository implements ports.AlertRepository
type alertRepository struct {
	db     querier
	logger *slog.Logger
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *Database, logger *slog.Logger) ports.AlertRepository {
	return &alertRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "alert")),
	}
}

var alertColumns = []string{
	"id", "product_id", "warehouse_id", "kind", "status", "quantity", "threshold", "created_at", "resolved_at",
}

// Raise inserts an open alert. The partial unique index on open alerts turns
// a concurrent duplicate into a no-op.
func (r *alertRepository) Raise(ctx context.Context, alert *domain.Alert) (bool, error) {
	query := `
		INSERT INTO alerts (product_id, warehouse_id, kind, status, quantity, threshold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (product_id, warehouse_id) WHERE status = 'OPEN' DO NOTHING
		RETURNING id, created_at`

	alert.Status = domain.AlertStatusOpen
	err := r.db.QueryRow(ctx, query,
		alert.ProductID, alert.WarehouseID, alert.Kind, alert.Status, alert.Quantity, alert.Threshold,
	).Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, storageError("failed to raise alert", err)
	}

	return true, nil
}

// FindOpen returns the open alert for a key, or nil
func (r *alertRepository) FindOpen(ctx context.Context, key domain.StockKey) (*domain.Alert, error) {
	alerts, err := r.List(ctx, domain.AlertFilter{
		Status:      domain.AlertStatusOpen,
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
	})
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return alerts[0], nil
}

// FindByID returns an alert by id, or nil
func (r *alertRepository) FindByID(ctx context.Context, id int64) (*domain.Alert, error) {
	sql, args, err := squirrel.Select(alertColumns...).
		From("alerts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, storageError("failed to build alert query", err)
	}

	alert, err := scanAlert(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to find alert", err)
	}

	return alert, nil
}

// ResolveOpen resolves the open alert for a key, if any
func (r *alertRepository) ResolveOpen(ctx context.Context, key domain.StockKey, at time.Time) (bool, error) {
	query := `
		UPDATE alerts SET status = 'RESOLVED', resolved_at = $3
		WHERE product_id = $1 AND warehouse_id = $2 AND status = 'OPEN'`

	tag, err := r.db.Exec(ctx, query, key.ProductID, key.WarehouseID, at)
	if err != nil {
		return false, storageError("failed to resolve alert", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Resolve resolves an alert by id if it is open
func (r *alertRepository) Resolve(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE alerts SET status = 'RESOLVED', resolved_at = $2
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, storageError("failed to resolve alert", err)
	}

	return tag.RowsAffected() == 1, nil
}

// List returns alerts newest first
func (r *alertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	qb := squirrel.Select(alertColumns...).
		From("alerts").
		PlaceholderFormat(squirrel.Dollar)

	if filter.Status != "" {
		qb = qb.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.ProductID > 0 {
		qb = qb.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.WarehouseID > 0 {
		qb = qb.Where(squirrel.Eq{"warehouse_id": filter.WarehouseID})
	}
	qb = qb.OrderBy("created_at DESC", "id DESC")

	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, storageError("failed to build alert query", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError("failed to query alerts", err)
	}

	alerts, err := scanMany(rows, func(row pgx.Rows) (*domain.Alert, error) {
		return scanAlert(row)
	})
	if err != nil {
		return nil, storageError("failed to scan alerts", err)
	}

	return alerts, nil
}

// DeleteResolvedBefore removes resolved alerts older than the cutoff
func (r *alertRepository) DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM alerts WHERE status = 'RESOLVED' AND resolved_at < $1`, before)
	if err != nil {
		return 0, storageError("failed to delete resolved alerts", err)
	}

	return tag.RowsAffected(), nil
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	a := &domain.Alert{}
	if err := row.Scan(
		&a.ID, &a.ProductID, &a.WarehouseID, &a.Kind, &a.Status,
		&a.Quantity, &a.Threshold, &a.CreatedAt, &a.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return a, nil
}

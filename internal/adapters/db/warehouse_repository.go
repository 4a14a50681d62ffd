// internal/adapters/db/warehouse_repository.go
package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

type warehouseRepository struct {
	db     querier
	logger *slog.Logger
}

// NewWarehouseRepository creates a new warehouse repository
func NewWarehouseRepository(db *Database, logger *slog.Logger) ports.WarehouseRepository {
	return &warehouseRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "warehouse")),
	}
}

func (r *warehouseRepository) Create(ctx context.Context, w *domain.Warehouse) error {
	query := `
		INSERT INTO warehouses (name, location, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	if err := r.db.QueryRow(ctx, query, w.Name, w.Location).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return domain.NewInvalidStateError("warehouse %q already exists", w.Name)
		}
		return storageError("failed to create warehouse", err)
	}

	return nil
}

func (r *warehouseRepository) Update(ctx context.Context, w *domain.Warehouse) error {
	query := `
		UPDATE warehouses SET name = $2, location = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, w.ID, w.Name, w.Location).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("warehouse", w.ID)
		}
		if pgErrorCode(err) == pgUniqueViolation {
			return domain.NewInvalidStateError("warehouse %q already exists", w.Name)
		}
		return storageError("failed to update warehouse", err)
	}

	return nil
}

func (r *warehouseRepository) FindByID(ctx context.Context, id int64) (*domain.Warehouse, error) {
	w, err := scanWarehouse(r.db.QueryRow(ctx,
		`SELECT id, name, location, created_at, updated_at FROM warehouses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to find warehouse", err)
	}
	return w, nil
}

func (r *warehouseRepository) List(ctx context.Context) ([]*domain.Warehouse, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, location, created_at, updated_at FROM warehouses ORDER BY id`)
	if err != nil {
		return nil, storageError("failed to query warehouses", err)
	}

	warehouses, err := scanMany(rows, func(row pgx.Rows) (*domain.Warehouse, error) {
		return scanWarehouse(row)
	})
	if err != nil {
		return nil, storageError("failed to scan warehouses", err)
	}
	return warehouses, nil
}

func scanWarehouse(row pgx.Row) (*domain.Warehouse, error) {
	w := &domain.Warehouse{}
	if err := row.Scan(&w.ID, &w.Name, &w.Location, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return w, nil
}

type supplierRepository struct {
	db     querier
	logger *slog.Logger
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *Database, logger *slog.Logger) ports.SupplierRepository {
	return &supplierRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "supplier")),
	}
}

func (r *supplierRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, storageError("failed to check supplier", err)
	}
	return exists, nil
}

func (r *supplierRepository) Create(ctx context.Context, s *domain.Supplier) error {
	query := `
		INSERT INTO suppliers (name, email, phone, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`

	if err := r.db.QueryRow(ctx, query, s.Name, s.Email, s.Phone).Scan(&s.ID, &s.CreatedAt); err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return domain.NewInvalidStateError("supplier %q already exists", s.Name)
		}
		return storageError("failed to create supplier", err)
	}
	return nil
}

func (r *supplierRepository) FindByName(ctx context.Context, name string) (*domain.Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx,
		`SELECT id, name, email, phone, created_at FROM suppliers WHERE lower(name) = lower($1)`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("failed to find supplier", err)
	}
	return s, nil
}

func (r *supplierRepository) List(ctx context.Context) ([]*domain.Supplier, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, email, phone, created_at FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, storageError("failed to query suppliers", err)
	}

	suppliers, err := scanMany(rows, func(row pgx.Rows) (*domain.Supplier, error) {
		return scanSupplier(row)
	})
	if err != nil {
		return nil, storageError("failed to scan suppliers", err)
	}
	return suppliers, nil
}

func scanSupplier(row pgx.Row) (*domain.Supplier, error) {
	s := &domain.Supplier{}
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// internal/core/services/directory.go
package services

import (
	"context"
	"log/slog"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// WarehouseDirectory manages warehouses
type WarehouseDirectory struct {
	repo   ports.WarehouseRepository
	logger *slog.Logger
}

var _ ports.WarehouseService = (*WarehouseDirectory)(nil)

func NewWarehouseDirectory(repo ports.WarehouseRepository, logger *slog.Logger) *WarehouseDirectory {
	return &WarehouseDirectory{
		repo:   repo,
		logger: logger.With(slog.String("service", "warehouse")),
	}
}

func (s *WarehouseDirectory) Create(ctx context.Context, w *domain.Warehouse) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "warehouse created", slog.Int64("warehouse_id", w.ID), slog.String("name", w.Name))
	return nil
}

func (s *WarehouseDirectory) Update(ctx context.Context, w *domain.Warehouse) error {
	if w.ID <= 0 {
		return domain.NewValidationError("id must be positive")
	}
	if err := w.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, w)
}

func (s *WarehouseDirectory) List(ctx context.Context) ([]*domain.Warehouse, error) {
	return s.repo.List(ctx)
}

// SupplierDirectory manages suppliers
type SupplierDirectory struct {
	repo   ports.SupplierRepository
	logger *slog.Logger
}

var _ ports.SupplierService = (*SupplierDirectory)(nil)

func NewSupplierDirectory(repo ports.SupplierRepository, logger *slog.Logger) *SupplierDirectory {
	return &SupplierDirectory{
		repo:   repo,
		logger: logger.With(slog.String("service", "supplier")),
	}
}

func (s *SupplierDirectory) Create(ctx context.Context, sup *domain.Supplier) error {
	if err := sup.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, sup); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "supplier created", slog.Int64("supplier_id", sup.ID), slog.String("name", sup.Name))
	return nil
}

func (s *SupplierDirectory) List(ctx context.Context) ([]*domain.Supplier, error) {
	return s.repo.List(ctx)
}

package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func TestWarehouseDirectory(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockWarehouseRepository(ctrl)
	svc := services.NewWarehouseDirectory(repo, helpers.TestLogger())
	ctx := context.Background()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, w *domain.Warehouse) error {
			assert.Equal(t, "Main", w.Name)
			w.ID = 1
			return nil
		})
	w := &domain.Warehouse{Name: " Main "}
	require.NoError(t, svc.Create(ctx, w))
	assert.Equal(t, int64(1), w.ID)

	assert.ErrorIs(t, svc.Create(ctx, &domain.Warehouse{}), domain.ErrValidation)
	assert.ErrorIs(t, svc.Update(ctx, &domain.Warehouse{Name: "X"}), domain.ErrValidation)

	repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(domain.NewNotFoundError("warehouse", 5))
	assert.ErrorIs(t, svc.Update(ctx, &domain.Warehouse{ID: 5, Name: "X"}), domain.ErrNotFound)
}

func TestSupplierDirectory(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSupplierRepository(ctrl)
	svc := services.NewSupplierDirectory(repo, helpers.TestLogger())
	ctx := context.Background()

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(domain.NewInvalidStateError("supplier %q already exists", "Acme"))
	assert.ErrorIs(t, svc.Create(ctx, &domain.Supplier{Name: "Acme"}), domain.ErrInvalidState)

	assert.ErrorIs(t, svc.Create(ctx, &domain.Supplier{Name: "Acme", Email: "bad"}), domain.ErrValidation)

	repo.EXPECT().List(gomock.Any()).Return([]*domain.Supplier{{ID: 1, Name: "Acme"}}, nil)
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

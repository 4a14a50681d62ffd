// internal/core/services/ledger_test.go
package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	redis_a "github.com/ammerola/stockflow/internal/adapters/redis_adapter"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func entry(productID, warehouseID, qty int64) *domain.StockEntry {
	return &domain.StockEntry{ProductID: productID, WarehouseID: warehouseID, Quantity: qty, UpdatedAt: time.Now().UTC()}
}

func TestLedgerService_Adjust(t *testing.T) {
	tests := []struct {
		name          string
		adj           domain.StockAdjustment
		setupMocks    func(*mocks.MockStockRepository, *mocks.MockStockEventPublisher)
		wantQuantity  int64
		wantErr       error
		errorContains string
	}{
		{
			name: "creates_entry_and_publishes",
			adj:  domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: 3},
			setupMocks: func(r *mocks.MockStockRepository, p *mocks.MockStockEventPublisher) {
				r.EXPECT().Adjust(gomock.Any(), domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: 3}).
					Return(entry(7, 2, 3), nil)
				p.EXPECT().PublishStockChanged(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, events ...domain.StockChangedEvent) error {
						require.Len(t, events, 1)
						assert.Equal(t, int64(3), events[0].Quantity)
						assert.Equal(t, int64(3), events[0].Delta)
						assert.Equal(t, domain.CauseAdjustment, events[0].Cause)
						return nil
					})
			},
			wantQuantity: 3,
		},
		{
			name: "zero_delta_is_allowed",
			adj:  domain.StockAdjustment{ProductID: 7, WarehouseID: 2},
			setupMocks: func(r *mocks.MockStockRepository, p *mocks.MockStockEventPublisher) {
				r.EXPECT().Adjust(gomock.Any(), gomock.Any()).Return(entry(7, 2, 2), nil)
				p.EXPECT().PublishStockChanged(gomock.Any(), gomock.Any()).Return(nil)
			},
			wantQuantity: 2,
		},
		{
			name:          "invalid_product_never_reaches_repository",
			adj:           domain.StockAdjustment{ProductID: 0, WarehouseID: 2, Delta: 1},
			setupMocks:    func(*mocks.MockStockRepository, *mocks.MockStockEventPublisher) {},
			wantErr:       domain.ErrValidation,
			errorContains: "productId",
		},
		{
			name: "insufficient_stock_does_not_publish",
			adj:  domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: -5},
			setupMocks: func(r *mocks.MockStockRepository, _ *mocks.MockStockEventPublisher) {
				r.EXPECT().Adjust(gomock.Any(), gomock.Any()).Return(nil, domain.ErrInsufficientStock)
			},
			wantErr:       domain.ErrValidation,
			errorContains: "insufficient stock",
		},
		{
			name: "storage_failure_propagates",
			adj:  domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: 1},
			setupMocks: func(r *mocks.MockStockRepository, _ *mocks.MockStockEventPublisher) {
				r.EXPECT().Adjust(gomock.Any(), gomock.Any()).
					Return(nil, domain.NewStorageError("failed to adjust stock", errors.New("conn reset")))
			},
			wantErr: domain.ErrStorage,
		},
		{
			name: "publish_failure_is_not_an_error",
			adj:  domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: 1},
			setupMocks: func(r *mocks.MockStockRepository, p *mocks.MockStockEventPublisher) {
				r.EXPECT().Adjust(gomock.Any(), gomock.Any()).Return(entry(7, 2, 1), nil)
				p.EXPECT().PublishStockChanged(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
			},
			wantQuantity: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockStockRepository(ctrl)
			pub := mocks.NewMockStockEventPublisher(ctrl)
			tt.setupMocks(repo, pub)

			svc := services.NewLedgerService(repo, pub, nil, time.Hour, helpers.TestLogger())

			got, err := svc.Adjust(context.Background(), tt.adj)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuantity, got.Quantity)
		})
	}
}

func TestLedgerService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockStockRepository(ctrl)
	svc := services.NewLedgerService(repo, nil, nil, 0, helpers.TestLogger())
	ctx := context.Background()

	key := domain.StockKey{ProductID: 7, WarehouseID: 2}
	repo.EXPECT().Get(gomock.Any(), key).Return(entry(7, 2, 4), nil)
	got, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Quantity)

	missing := domain.StockKey{ProductID: 8, WarehouseID: 2}
	repo.EXPECT().Get(gomock.Any(), missing).Return(nil, nil)
	_, err = svc.Get(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, domain.StockKey{ProductID: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLedgerService_AdjustIdempotent(t *testing.T) {
	newService := func(t *testing.T) (*services.LedgerService, *mocks.MockStockRepository, *helpers.TestRedis) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockStockRepository(ctrl)
		pub := mocks.NewMockStockEventPublisher(ctrl)
		pub.EXPECT().PublishStockChanged(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

		tr := helpers.SetupTestRedis(t)
		cache := redis_a.NewCache(tr.Client, time.Hour, helpers.TestLogger())
		return services.NewLedgerService(repo, pub, cache, time.Hour, helpers.TestLogger()), repo, tr
	}
	adj := domain.StockAdjustment{ProductID: 7, WarehouseID: 2, Delta: 3}

	t.Run("replays_stored_result", func(t *testing.T) {
		svc, repo, tr := newService(t)
		repo.EXPECT().Adjust(gomock.Any(), adj).Return(entry(7, 2, 3), nil).Times(1)

		first, err := svc.AdjustIdempotent(context.Background(), "abc", adj)
		require.NoError(t, err)
		second, err := svc.AdjustIdempotent(context.Background(), "abc", adj)
		require.NoError(t, err)

		assert.Equal(t, first.Quantity, second.Quantity)
		assert.True(t, tr.Server.Exists("idem:abc"))
		assert.False(t, tr.Server.Exists("idem:abc:lock"), "lock must be released")

		ttl := tr.Server.TTL("idem:abc")
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("rejects_key_reuse_with_different_body", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.EXPECT().Adjust(gomock.Any(), adj).Return(entry(7, 2, 3), nil)

		_, err := svc.AdjustIdempotent(context.Background(), "k1", adj)
		require.NoError(t, err)

		other := adj
		other.Delta = 4
		_, err = svc.AdjustIdempotent(context.Background(), "k1", other)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("in_progress_key_is_invalid_state", func(t *testing.T) {
		svc, _, tr := newService(t)
		require.NoError(t, tr.Server.Set("idem:busy:lock", "1"))

		_, err := svc.AdjustIdempotent(context.Background(), "busy", adj)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("failed_adjust_is_not_stored", func(t *testing.T) {
		svc, repo, tr := newService(t)
		repo.EXPECT().Adjust(gomock.Any(), adj).Return(nil, domain.ErrInsufficientStock)

		_, err := svc.AdjustIdempotent(context.Background(), "k2", adj)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.False(t, tr.Server.Exists("idem:k2"))
		assert.False(t, tr.Server.Exists("idem:k2:lock"))
	})

	t.Run("result_stored_while_waiting_for_lock_is_replayed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockStockRepository(ctrl)
		pub := mocks.NewMockStockEventPublisher(ctrl)
		pub.EXPECT().PublishStockChanged(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		repo.EXPECT().Adjust(gomock.Any(), adj).Return(entry(7, 2, 3), nil).Times(1)

		tr := helpers.SetupTestRedis(t)
		cache := &interleavingCache{CacheRepository: redis_a.NewCache(tr.Client, time.Hour, helpers.TestLogger())}
		svc := services.NewLedgerService(repo, pub, cache, time.Hour, helpers.TestLogger())

		// a second request with the same key completes after the first
		// request's lookup misses and before it takes the lock
		cache.afterFirstMiss = func() {
			got, err := svc.AdjustIdempotent(context.Background(), "race", adj)
			require.NoError(t, err)
			assert.Equal(t, int64(3), got.Quantity)
		}

		got, err := svc.AdjustIdempotent(context.Background(), "race", adj)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Quantity)
		assert.False(t, tr.Server.Exists("idem:race:lock"))
	})

	t.Run("empty_key_applies_directly", func(t *testing.T) {
		svc, repo, tr := newService(t)
		repo.EXPECT().Adjust(gomock.Any(), adj).Return(entry(7, 2, 3), nil).Times(2)

		_, err := svc.AdjustIdempotent(context.Background(), "", adj)
		require.NoError(t, err)
		_, err = svc.AdjustIdempotent(context.Background(), "", adj)
		require.NoError(t, err)
		assert.Empty(t, tr.Server.Keys())
	})
}

// interleavingCache runs afterFirstMiss once, right after the first cache
// miss, to interleave another caller between a lookup and the lock
type interleavingCache struct {
	ports.CacheRepository
	afterFirstMiss func()
	fired          bool
}

func (c *interleavingCache) Get(ctx context.Context, key string, dest interface{}) error {
	err := c.CacheRepository.Get(ctx, key, dest)
	if errors.Is(err, ports.ErrCacheMiss) && !c.fired && c.afterFirstMiss != nil {
		c.fired = true
		c.afterFirstMiss()
	}
	return err
}

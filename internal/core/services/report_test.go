// internal/core/services/report_test.go
package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	redis_a "github.com/ammerola/stockflow/internal/adapters/redis_adapter"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

type reportFixture struct {
	svc     *services.ReportService
	catalog *mocks.MockProductCatalog
	stock   *mocks.MockStockLedgerService
	orders  *mocks.MockPurchaseOrderService
	redis   *helpers.TestRedis
}

func newReportFixture(t *testing.T, timeout time.Duration) *reportFixture {
	ctrl := gomock.NewController(t)
	f := &reportFixture{
		catalog: mocks.NewMockProductCatalog(ctrl),
		stock:   mocks.NewMockStockLedgerService(ctrl),
		orders:  mocks.NewMockPurchaseOrderService(ctrl),
		redis:   helpers.SetupTestRedis(t),
	}
	cache := redis_a.NewCache(f.redis.Client, time.Hour, helpers.TestLogger())
	f.svc = services.NewReportService(f.catalog, f.stock, f.orders, cache, timeout, helpers.TestLogger())
	return f
}

func TestReportService_StockValuation(t *testing.T) {
	t.Run("values_stock_across_warehouses", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return([]*domain.Product{
			helpers.CreateTestProduct(2, "Gadget", 2.50),
			helpers.CreateTestProduct(1, "Widget", 10),
			{ID: 3, Name: "Unpriced"},
		}, nil)
		f.stock.EXPECT().List(gomock.Any(), domain.StockFilter{}).Return([]*domain.StockEntry{
			{ProductID: 1, WarehouseID: 1, Quantity: 3},
			{ProductID: 1, WarehouseID: 2, Quantity: 2},
			{ProductID: 3, WarehouseID: 1, Quantity: 9},
		}, nil)

		report, err := f.svc.StockValuation(context.Background())
		require.NoError(t, err)

		assert.False(t, report.Degraded)
		require.Len(t, report.Rows, 3)

		assert.Equal(t, int64(1), report.Rows[0].ProductID)
		assert.Equal(t, int64(5), report.Rows[0].Quantity)
		assert.True(t, report.Rows[0].TotalValue.Equal(decimal.NewFromInt(50)))

		assert.Equal(t, "Gadget", report.Rows[1].ProductName)
		assert.Equal(t, int64(0), report.Rows[1].Quantity, "product without stock values at 0")
		assert.True(t, report.Rows[1].TotalValue.IsZero())

		assert.True(t, report.Rows[2].Price.IsZero(), "missing price defaults to 0")
		assert.True(t, report.Rows[2].TotalValue.IsZero())

		assert.True(t, report.TotalValue.Equal(decimal.NewFromInt(50)))
	})

	t.Run("stock_outside_healthy_catalog_is_skipped", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return([]*domain.Product{
			helpers.CreateTestProduct(1, "Widget", 10),
		}, nil)
		f.stock.EXPECT().List(gomock.Any(), domain.StockFilter{}).Return([]*domain.StockEntry{
			{ProductID: 1, WarehouseID: 1, Quantity: 2},
			{ProductID: 5, WarehouseID: 1, Quantity: 40},
		}, nil)

		report, err := f.svc.StockValuation(context.Background())
		require.NoError(t, err)

		assert.False(t, report.Degraded)
		require.Len(t, report.Rows, 1)
		assert.Equal(t, int64(1), report.Rows[0].ProductID)
		assert.Equal(t, "Widget", report.Rows[0].ProductName)
		assert.True(t, report.TotalValue.Equal(decimal.NewFromInt(20)))
	})

	t.Run("catalog_failure_degrades_to_unknown", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return(nil, errors.New("503 from products"))
		f.stock.EXPECT().List(gomock.Any(), gomock.Any()).Return([]*domain.StockEntry{
			{ProductID: 4, WarehouseID: 1, Quantity: 6},
		}, nil)

		report, err := f.svc.StockValuation(context.Background())
		require.NoError(t, err)

		assert.True(t, report.Degraded)
		assert.Contains(t, report.Errors[domain.SourceProducts], "products unavailable")
		require.Len(t, report.Rows, 1)
		assert.Equal(t, domain.UnknownProductName, report.Rows[0].ProductName)
		assert.Equal(t, int64(6), report.Rows[0].Quantity)
		assert.True(t, report.Rows[0].TotalValue.IsZero())

		counter, err := f.redis.Server.Get("report:upstream_failures:products")
		require.NoError(t, err)
		assert.Equal(t, "1", counter)
	})

	t.Run("slow_source_times_out_and_degrades", func(t *testing.T) {
		f := newReportFixture(t, 50*time.Millisecond)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return([]*domain.Product{
			helpers.CreateTestProduct(1, "Widget", 10),
		}, nil)
		f.stock.EXPECT().List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ domain.StockFilter) ([]*domain.StockEntry, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})

		start := time.Now()
		report, err := f.svc.StockValuation(context.Background())
		require.NoError(t, err)

		assert.Less(t, time.Since(start), time.Second)
		assert.True(t, report.Degraded)
		assert.Contains(t, report.Errors, domain.SourceStock)
		require.Len(t, report.Rows, 1)
		assert.Equal(t, int64(0), report.Rows[0].Quantity)
	})

	t.Run("empty_is_not_degraded", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return([]*domain.Product{}, nil)
		f.stock.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil)

		report, err := f.svc.StockValuation(context.Background())
		require.NoError(t, err)
		assert.False(t, report.Degraded)
		assert.Empty(t, report.Rows)
	})

	t.Run("caller_cancellation_fails_the_report", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return(nil, context.Canceled).AnyTimes()
		f.stock.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, context.Canceled).AnyTimes()

		_, err := f.svc.StockValuation(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReportService_Turnover(t *testing.T) {
	orders := []*domain.PurchaseOrder{
		{ID: 1, Status: domain.POStatusReceived, Items: []domain.POItem{{ProductID: 1, Quantity: 4}, {ProductID: 99, Quantity: 2}}},
		{ID: 2, Status: domain.POStatusReceived, Items: []domain.POItem{{ProductID: 1, Quantity: 1}}},
	}

	t.Run("counts_every_order_by_default", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return([]*domain.Product{
			helpers.CreateTestProduct(1, "Widget", 3),
		}, nil)
		pending := &domain.PurchaseOrder{ID: 3, Status: domain.POStatusCreated, Items: []domain.POItem{{ProductID: 10, Quantity: 6}}}
		f.orders.EXPECT().List(gomock.Any(), domain.PurchaseOrderFilter{
			Statuses: []domain.POStatus{domain.POStatusCreated, domain.POStatusReceived},
		}).Return(append(orders, pending), nil)

		report, err := f.svc.Turnover(context.Background(), domain.TurnoverOptions{})
		require.NoError(t, err)

		require.Len(t, report.Rows, 3)
		assert.Equal(t, int64(1), report.Rows[0].ProductID)
		assert.Equal(t, int64(5), report.Rows[0].QuantitySold)
		assert.True(t, report.Rows[0].TotalRevenue.Equal(decimal.NewFromInt(15)))

		assert.Equal(t, int64(10), report.Rows[1].ProductID)
		assert.Equal(t, int64(6), report.Rows[1].QuantitySold)

		assert.Equal(t, int64(99), report.Rows[2].ProductID)
		assert.Equal(t, domain.UnknownProductName, report.Rows[2].ProductName)
		assert.True(t, report.Rows[2].TotalRevenue.IsZero())
		assert.False(t, report.ReceivedOnly)
	})

	t.Run("received_only_skips_created_orders", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return(nil, nil)
		f.orders.EXPECT().List(gomock.Any(), domain.PurchaseOrderFilter{
			Statuses: []domain.POStatus{domain.POStatusReceived},
		}).Return(orders, nil)

		report, err := f.svc.Turnover(context.Background(), domain.TurnoverOptions{ReceivedOnly: true})
		require.NoError(t, err)
		assert.True(t, report.ReceivedOnly)
		require.Len(t, report.Rows, 2)
	})

	t.Run("order_failure_degrades_to_empty", func(t *testing.T) {
		f := newReportFixture(t, time.Second)
		f.catalog.EXPECT().ListProducts(gomock.Any()).Return(nil, nil)
		f.orders.EXPECT().List(gomock.Any(), gomock.Any()).
			Return(nil, domain.NewStorageError("failed to list purchase orders", errors.New("conn refused")))

		report, err := f.svc.Turnover(context.Background(), domain.TurnoverOptions{})
		require.NoError(t, err)
		assert.True(t, report.Degraded)
		assert.Contains(t, report.Errors, domain.SourcePurchaseOrders)
		assert.Empty(t, report.Rows)
		assert.True(t, report.TotalRevenue.IsZero())
	})
}

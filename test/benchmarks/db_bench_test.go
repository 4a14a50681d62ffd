//go:build integration

package benchmarks

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ammerola/stockflow/internal/adapters/db"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/test/helpers"
)

func BenchmarkStockRepository(b *testing.B) {
	testDB := helpers.SetupTestDB(b)
	ctx := context.Background()
	logger := helpers.TestLogger()
	repo := db.NewStockRepository(testDB.Database, logger)
	warehouseID := helpers.SeedWarehouse(b, testDB.PgxPool, "Bench Warehouse")

	b.Run("Adjust", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			adj := domain.StockAdjustment{ProductID: int64(i%1000) + 1, WarehouseID: warehouseID, Delta: 1}
			if _, err := repo.Adjust(ctx, adj); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("AdjustContended", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			adj := domain.StockAdjustment{ProductID: 5000, WarehouseID: warehouseID, Delta: 1}
			for pb.Next() {
				if _, err := repo.Adjust(ctx, adj); err != nil {
					b.Error(err)
				}
			}
		})
	})

	b.Run("Get", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			key := domain.StockKey{ProductID: int64(i%1000) + 1, WarehouseID: warehouseID}
			if _, err := repo.Get(ctx, key); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("ListWarehouse", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := repo.List(ctx, domain.StockFilter{WarehouseID: warehouseID}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkPurchaseOrderRepository(b *testing.B) {
	testDB := helpers.SetupTestDB(b)
	ctx := context.Background()
	logger := helpers.TestLogger()
	repo := db.NewPurchaseOrderRepository(testDB.Database, logger)
	supplierID := helpers.SeedSupplier(b, testDB.PgxPool, "Bench Supplier")
	warehouseID := helpers.SeedWarehouse(b, testDB.PgxPool, "Bench Warehouse")

	var seq atomic.Int64
	newOrder := func() *domain.PurchaseOrder {
		n := seq.Add(1)
		return helpers.CreateTestPurchaseOrder(func(po *domain.PurchaseOrder) {
			po.SupplierID = supplierID
			po.WarehouseID = warehouseID
			po.Reference = fmt.Sprintf("BENCH-%06d", n)
		})
	}

	b.Run("Create", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if err := repo.Create(ctx, newOrder()); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("ListReceived", func(b *testing.B) {
		for i := 0; i < 200; i++ {
			po := newOrder()
			if err := repo.Create(ctx, po); err != nil {
				b.Fatal(err)
			}
			if i%2 == 0 {
				if _, err := repo.MarkReceived(ctx, po.ID, po.OrderDate); err != nil {
					b.Fatal(err)
				}
			}
		}

		filter := domain.PurchaseOrderFilter{Statuses: []domain.POStatus{domain.POStatusReceived}}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := repo.List(ctx, filter); err != nil {
				b.Fatal(err)
			}
		}
	})
}

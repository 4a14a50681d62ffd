// test/benchmarks/helpers.go
package benchmarks

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/test/helpers"
)

// memoryStock is an in-process StockRepository with per-key atomic adjusts
type memoryStock struct {
	mu      sync.Mutex
	entries map[domain.StockKey]*domain.StockEntry
}

var _ ports.StockRepository = (*memoryStock)(nil)

func newMemoryStock(entries []*domain.StockEntry) *memoryStock {
	m := &memoryStock{entries: make(map[domain.StockKey]*domain.StockEntry, len(entries))}
	for _, e := range entries {
		m.entries[e.Key()] = e
	}
	return m
}

func (m *memoryStock) Adjust(_ context.Context, adj domain.StockAdjustment) (*domain.StockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[adj.Key()]
	if !ok {
		e = &domain.StockEntry{ProductID: adj.ProductID, WarehouseID: adj.WarehouseID}
		m.entries[adj.Key()] = e
	}
	if adj.Expected != nil && *adj.Expected != e.Quantity {
		return nil, domain.ErrStockChanged
	}
	if e.Quantity+adj.Delta < 0 {
		return nil, domain.ErrInsufficientStock
	}
	e.Quantity += adj.Delta
	e.UpdatedAt = time.Now()
	copied := *e
	return &copied, nil
}

func (m *memoryStock) Get(_ context.Context, key domain.StockKey) (*domain.StockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStock) List(_ context.Context, _ domain.StockFilter) ([]*domain.StockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.StockEntry, 0, len(m.entries))
	for _, e := range m.entries {
		copied := *e
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

// staticCatalog serves a fixed product list
type staticCatalog struct {
	products []*domain.Product
}

var _ ports.ProductCatalog = (*staticCatalog)(nil)

func newStaticCatalog(n int) *staticCatalog {
	products := make([]*domain.Product, n)
	for i := range products {
		products[i] = helpers.CreateTestProduct(int64(i+1), fmt.Sprintf("Product %d", i+1), float64(i%50)+0.99)
	}
	return &staticCatalog{products: products}
}

func (c *staticCatalog) ListProducts(context.Context) ([]*domain.Product, error) {
	return c.products, nil
}

func (c *staticCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if id < 1 || int(id) > len(c.products) {
		return nil, domain.NewNotFoundError("product", id)
	}
	return c.products[id-1], nil
}

// staticOrders serves a fixed purchase order list, filtered by status
type staticOrders struct {
	orders []*domain.PurchaseOrder
}

var _ ports.PurchaseOrderReader = (*staticOrders)(nil)

func newStaticOrders(n, products int) *staticOrders {
	orders := make([]*domain.PurchaseOrder, n)
	for i := range orders {
		orders[i] = helpers.CreateTestPurchaseOrder(func(po *domain.PurchaseOrder) {
			po.ID = int64(i + 1)
			if i%3 != 0 {
				po.Status = domain.POStatusReceived
			}
			po.Items = []domain.POItem{
				{ProductID: int64(i%products) + 1, Quantity: int64(i%7) + 1},
				{ProductID: int64((i+1)%products) + 1, Quantity: 2},
			}
		})
	}
	return &staticOrders{orders: orders}
}

func (o *staticOrders) List(_ context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error) {
	if len(filter.Statuses) == 0 {
		return o.orders, nil
	}
	out := make([]*domain.PurchaseOrder, 0, len(o.orders))
	for _, po := range o.orders {
		for _, s := range filter.Statuses {
			if po.Status == s {
				out = append(out, po)
				break
			}
		}
	}
	return out, nil
}

// createStockCountWorkbook builds a stock count sheet with n delta rows
func createStockCountWorkbook(n int) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Count")
	if err != nil {
		return nil, err
	}

	header := sheet.AddRow()
	for _, h := range []string{"product_id", "warehouse_id", "delta"} {
		header.AddCell().SetString(h)
	}
	for i := 0; i < n; i++ {
		row := sheet.AddRow()
		row.AddCell().SetInt(i/4 + 1)
		row.AddCell().SetInt(i%4 + 1)
		row.AddCell().SetInt(i%9)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

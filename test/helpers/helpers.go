// test/helpers/helpers.go
package helpers

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/pkg/config"
)

// TestLogger logs at debug under -v and stays silent otherwise
func TestLogger() *slog.Logger {
	if !testing.Verbose() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// LoadTestConfig returns a valid configuration for the test environment
// without reading the process environment
func LoadTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "stockflow-test",
			Environment: "test",
			Version:     "test",
			LogLevel:    "debug",
			LogFormat:   "text",
		},
		Database: config.DatabaseConfig{
			Host:           "localhost",
			Port:           "5432",
			User:           "test",
			Password:       "test",
			Name:           "stockflow_test",
			SSLMode:        "disable",
			MaxConnections: 10,
			MinConnections: 2,
		},
		Redis: config.RedisConfig{Host: "localhost", Port: "6379", TTL: time.Hour, PoolSize: 10},
		FileProcessing: config.FileProcessingConfig{
			PDFMaxSizeMB:      20,
			ExcelMaxSizeMB:    20,
			ProcessingTimeout: time.Minute,
			TempDir:           os.TempDir(),
			JobRetention:      7 * 24 * time.Hour,
			TempFileMaxAge:    24 * time.Hour,
		},
		Security: config.SecurityConfig{
			JWTSecret:         "test-secret-that-is-long-enough-for-hs256",
			RateLimitRequests: 100,
			RateLimitDuration: time.Minute,
			AllowedOrigins:    []string{"*"},
			RequestIDHeader:   "X-Request-ID",
		},
		Server:  config.ServerConfig{Host: "localhost", Port: "8080", ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second},
		Catalog: config.CatalogConfig{BaseURL: "http://localhost:8081", RequestTimeout: time.Second, MaxRetries: 1},
		Events:  config.EventsConfig{Backend: "inline"},
		Alerts:  config.AlertsConfig{DefaultThreshold: 10, ResolvedRetention: 30 * 24 * time.Hour},
		Reports: config.ReportsConfig{SourceTimeout: time.Second, IdempotencyTTL: time.Hour, ExportURLExpiry: time.Hour},
	}
}

// CreateTestPurchaseOrder returns a CREATED order for supplier 1 into
// warehouse 1 with two lines; overrides adjust it
func CreateTestPurchaseOrder(overrides ...func(*domain.PurchaseOrder)) *domain.PurchaseOrder {
	po := &domain.PurchaseOrder{
		SupplierID:  1,
		WarehouseID: 1,
		Status:      domain.POStatusCreated,
		OrderDate:   time.Now().UTC().Truncate(time.Microsecond),
		Reference:   "PO-TEST-001",
		Items:       []domain.POItem{{ProductID: 1, Quantity: 5}, {ProductID: 2, Quantity: 3}},
	}
	for _, o := range overrides {
		o(po)
	}
	return po
}

// CreateTestProduct returns a catalog product priced at price
func CreateTestProduct(id int64, name string, price float64) *domain.Product {
	p := decimal.NewFromFloat(price)
	return &domain.Product{ID: id, Name: name, SKU: fmt.Sprintf("SKU-%03d", id), Price: &p}
}

// CreateTestStockEntries spreads count entries round robin over warehouses;
// entry i holds 10*(i+1) units
func CreateTestStockEntries(count int, warehouses int64) []*domain.StockEntry {
	now := time.Now().UTC()
	entries := make([]*domain.StockEntry, count)
	for i := range entries {
		entries[i] = &domain.StockEntry{
			ProductID:   int64(i)/warehouses + 1,
			WarehouseID: int64(i)%warehouses + 1,
			Quantity:    int64(10 * (i + 1)),
			UpdatedAt:   now,
		}
	}
	return entries
}

// CreateTempFile writes content to a file with the given extension in the
// test's temp dir and returns its path
func CreateTempFile(t *testing.T, content []byte, extension string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload"+extension)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

//go:build e2e
// +build e2e

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/ammerola/stockflow/internal/adapters/catalog"
	"github.com/ammerola/stockflow/internal/adapters/db"
	"github.com/ammerola/stockflow/internal/adapters/events"
	redis_a "github.com/ammerola/stockflow/internal/adapters/redis_adapter"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/internal/handlers"
	"github.com/ammerola/stockflow/internal/handlers/middleware"
	"github.com/ammerola/stockflow/internal/workers"
	"github.com/ammerola/stockflow/test/helpers"
)

type StockE2ESuite struct {
	suite.Suite
	server    *httptest.Server
	catalog   *httptest.Server
	client    *http.Client
	baseURL   string
	testDB    *helpers.TestDB
	testRedis *helpers.TestRedis
	enqueuer  *recordingEnqueuer
}

// recordingEnqueuer accepts tasks without a broker
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprint(len(e.tasks)), Type: task.Type(), Queue: "default"}, nil
}

func (s *StockE2ESuite) SetupSuite() {
	s.testDB = helpers.SetupTestDB(s.T())
	s.testRedis = helpers.SetupTestRedis(s.T())
	s.catalog = s.startCatalog()
	s.server = s.startTestServer()
	s.client = &http.Client{Timeout: 10 * time.Second}
	s.baseURL = s.server.URL + handlers.APIPrefix
}

func (s *StockE2ESuite) TearDownSuite() {
	s.server.Close()
	s.catalog.Close()
}

func (s *StockE2ESuite) SetupTest() {
	helpers.TruncateAllTables(s.T(), s.testDB.PgxPool)
	s.testRedis.Server.FlushAll()
}

func (s *StockE2ESuite) TestPurchaseOrderReceiptWorkflow() {
	warehouseID := s.createWarehouse("Main Warehouse")
	supplierID := s.createSupplier("Acme Supply")

	// threshold 5 on product 1; product 2 falls back to the default
	resp := s.makeRequest(http.MethodPut, "/alerts/thresholds", map[string]any{
		"productId": 1, "warehouseId": warehouseID, "threshold": 5,
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.makeRequest(http.MethodPost, "/purchase-orders", map[string]any{
		"supplierId":  supplierID,
		"warehouseId": warehouseID,
		"reference":   "E2E-001",
		"items": []map[string]any{
			{"productId": 1, "quantity": 4},
			{"productId": 2, "quantity": 20},
		},
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var po domain.PurchaseOrder
	s.decodeResponse(resp, &po)
	s.Equal(domain.POStatusCreated, po.Status)

	resp = s.makeRequest(http.MethodPatch, fmt.Sprintf("/purchase-orders/%d/receive", po.ID), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var received domain.PurchaseOrder
	s.decodeResponse(resp, &received)
	s.Equal(domain.POStatusReceived, received.Status)
	s.NotNil(received.ReceivedAt)

	s.Equal(int64(4), s.quantity(1, warehouseID))
	s.Equal(int64(20), s.quantity(2, warehouseID))

	// receiving twice is rejected and stock is untouched
	resp = s.makeRequest(http.MethodPatch, fmt.Sprintf("/purchase-orders/%d/receive", po.ID), nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	s.Equal(int64(4), s.quantity(1, warehouseID))

	// 4 is under the threshold of 5, so the inline evaluator raised an alert
	alerts := s.listAlerts("open")
	s.Require().Len(alerts, 1)
	s.Equal(int64(1), alerts[0].ProductID)
	s.Equal(domain.AlertKindLowStock, alerts[0].Kind)

	// restocking past the threshold resolves it
	s.adjust(1, warehouseID, 3, "")
	s.Empty(s.listAlerts("open"))
	s.Len(s.listAlerts("resolved"), 1)

	resp = s.makeRequest(http.MethodGet, "/reports/stock-valuation", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var valuation domain.StockValuationReport
	s.decodeResponse(resp, &valuation)
	s.False(valuation.Degraded)
	// 7 x 2.50 + 20 x 10.00
	s.True(decimal.RequireFromString("217.5").Equal(valuation.TotalValue), valuation.TotalValue.String())

	resp = s.makeRequest(http.MethodGet, "/reports/turnover", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var turnover domain.TurnoverReport
	s.decodeResponse(resp, &turnover)
	s.Require().Len(turnover.Rows, 2)
	s.Equal(int64(4), turnover.Rows[0].QuantitySold)
	s.True(decimal.RequireFromString("210").Equal(turnover.TotalRevenue), turnover.TotalRevenue.String())
}

func (s *StockE2ESuite) TestAdjustmentRules() {
	warehouseID := s.createWarehouse("Adjustments")

	s.adjust(10, warehouseID, 5, "")

	resp := s.makeRequest(http.MethodPost, "/stock/adjustments", map[string]any{
		"productId": 10, "warehouseId": warehouseID, "delta": -6,
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	s.Equal(int64(5), s.quantity(10, warehouseID))

	// zero deltas are accepted and change nothing
	s.adjust(10, warehouseID, 0, "")
	s.Equal(int64(5), s.quantity(10, warehouseID))

	// a repeated idempotency key is applied once
	s.adjust(10, warehouseID, 2, "restock-42")
	s.adjust(10, warehouseID, 2, "restock-42")
	s.Equal(int64(7), s.quantity(10, warehouseID))

	resp = s.makeRequest(http.MethodGet, fmt.Sprintf("/stock/99/%d", warehouseID), nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func (s *StockE2ESuite) TestConcurrentAdjustments() {
	warehouseID := s.createWarehouse("Concurrent")
	const clients, perWorker = 10, 5

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				resp := s.makeRequest(http.MethodPost, "/stock/adjustments", map[string]any{
					"productId": 3, "warehouseId": warehouseID, "delta": 1,
				})
				s.Equal(http.StatusOK, resp.StatusCode)
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(clients*perWorker), s.quantity(3, warehouseID))
}

func (s *StockE2ESuite) TestReportExportQueued() {
	resp := s.makeRequest(http.MethodPost, "/reports/stock-valuation/exports", nil)
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)

	var accepted handlers.JobAccepted
	s.decodeResponse(resp, &accepted)
	s.Require().NotEmpty(accepted.JobID)

	resp = s.makeRequest(http.MethodGet, "/import/status/"+accepted.JobID, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var job domain.Job
	s.decodeResponse(resp, &job)
	s.Equal(domain.JobStatusQueued, job.Status)

	s.enqueuer.mu.Lock()
	defer s.enqueuer.mu.Unlock()
	s.Require().NotEmpty(s.enqueuer.tasks)
	s.Equal(workers.TypeReportExport, s.enqueuer.tasks[len(s.enqueuer.tasks)-1].Type())
}

func (s *StockE2ESuite) TestHealthCheck() {
	resp, err := s.client.Get(s.server.URL + "/health")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)

	var health handlers.HealthStatus
	s.decodeResponse(resp, &health)
	s.Equal("healthy", health.Status)
	s.Contains(health.Services, "database")
	s.Contains(health.Services, "redis")
	s.Contains(health.Services, "catalog")
}

// Helper methods

func (s *StockE2ESuite) startCatalog() *httptest.Server {
	products := []*domain.Product{
		helpers.CreateTestProduct(1, "Widget", 2.50),
		helpers.CreateTestProduct(2, "Gadget", 10.00),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(products)
	})
	mux.HandleFunc("GET /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, p := range products {
			if fmt.Sprint(p.ID) == r.PathValue("id") {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(p)
				return
			}
		}
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

func (s *StockE2ESuite) startTestServer() *httptest.Server {
	cfg := helpers.LoadTestConfig()
	logger := helpers.TestLogger()
	database := s.testDB.Database

	stockRepo := db.NewStockRepository(database, logger)
	orderRepo := db.NewPurchaseOrderRepository(database, logger)
	alertRepo := db.NewAlertRepository(database, logger)
	thresholdRepo := db.NewThresholdRepository(database, logger)
	warehouseRepo := db.NewWarehouseRepository(database, logger)
	supplierRepo := db.NewSupplierRepository(database, logger)
	jobRepo := db.NewJobRepository(database, logger)
	txRunner := db.NewTxRunner(database, logger)

	cache := redis_a.NewCache(s.testRedis.Client, time.Hour, logger)
	productCatalog := catalog.NewClient(catalog.Config{
		BaseURL:        s.catalog.URL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     1,
	}, logger)

	alerts := services.NewAlertService(alertRepo, thresholdRepo, nil, 10, logger)
	publisher := events.NewInlinePublisher(workers.NewStockEventProcessor(alerts, stockRepo, logger).Handle, logger)
	ledger := services.NewLedgerService(stockRepo, publisher, cache, time.Hour, logger)
	orders := services.NewPurchaseOrderService(orderRepo, supplierRepo, txRunner, publisher, logger)
	reports := services.NewReportService(productCatalog, ledger, orders, cache, time.Second, logger)

	s.enqueuer = &recordingEnqueuer{}
	queueConfig := handlers.JobQueueConfig{Queue: "default", MaxRetry: 1, Timeout: time.Minute, Retention: time.Hour}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Handlers{
		Health: handlers.NewHealthHandler(cfg, logger,
			handlers.DatabaseCheck(database),
			handlers.RedisCheck(s.testRedis.Client),
			handlers.CatalogCheck(productCatalog)),
		Stock:          handlers.NewStockHandler(ledger, logger),
		Directory:      handlers.NewDirectoryHandler(services.NewWarehouseDirectory(warehouseRepo, logger), services.NewSupplierDirectory(supplierRepo, logger), logger),
		PurchaseOrders: handlers.NewPurchaseOrderHandler(orders, logger),
		Alerts:         handlers.NewAlertHandler(alerts, logger),
		Reports:        handlers.NewReportHandler(reports, jobRepo, s.enqueuer, queueConfig, false, logger),
		Imports: handlers.NewImportHandler(jobRepo, s.enqueuer, handlers.ImportConfig{
			UploadDir:     s.T().TempDir(),
			PDFMaxBytes:   1 << 20,
			ExcelMaxBytes: 1 << 20,
			JobQueue:      queueConfig,
		}, logger),
	})

	handler := middleware.Chain(mux,
		middleware.RequestID(cfg.Security.RequestIDHeader),
		middleware.Recovery(logger),
	)
	return httptest.NewServer(handler)
}

func (s *StockE2ESuite) createWarehouse(name string) int64 {
	resp := s.makeRequest(http.MethodPost, "/warehouses", map[string]any{"name": name, "location": "Dock 1"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var w domain.Warehouse
	s.decodeResponse(resp, &w)
	return w.ID
}

func (s *StockE2ESuite) createSupplier(name string) int64 {
	resp := s.makeRequest(http.MethodPost, "/suppliers", map[string]any{"name": name, "email": "orders@example.com"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var sup domain.Supplier
	s.decodeResponse(resp, &sup)
	return sup.ID
}

func (s *StockE2ESuite) adjust(productID, warehouseID, delta int64, idemKey string) {
	body, err := json.Marshal(map[string]any{"productId": productID, "warehouseId": warehouseID, "delta": delta})
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/stock/adjustments", bytes.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set(handlers.IdempotencyKeyHeader, idemKey)
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func (s *StockE2ESuite) quantity(productID, warehouseID int64) int64 {
	resp := s.makeRequest(http.MethodGet, fmt.Sprintf("/stock/%d/%d", productID, warehouseID), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var entry domain.StockEntry
	s.decodeResponse(resp, &entry)
	return entry.Quantity
}

func (s *StockE2ESuite) listAlerts(status string) []*domain.Alert {
	resp := s.makeRequest(http.MethodGet, "/alerts?status="+status, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var alerts []*domain.Alert
	s.decodeResponse(resp, &alerts)
	return alerts
}

func (s *StockE2ESuite) makeRequest(method, path string, body any) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		s.Require().NoError(err)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reqBody)
	s.Require().NoError(err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)

	return resp
}

func (s *StockE2ESuite) decodeResponse(resp *http.Response, v any) {
	defer resp.Body.Close()
	err := json.NewDecoder(resp.Body).Decode(v)
	s.NoError(err)
}

func TestStockE2ESuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	suite.Run(t, new(StockE2ESuite))
}

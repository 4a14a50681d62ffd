package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/handlers"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func TestRegisterRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockStockLedgerService(ctrl)
	alerts := mocks.NewMockAlertService(ctrl)
	orders := mocks.NewMockPurchaseOrderService(ctrl)
	logger := helpers.TestLogger()

	ledger.EXPECT().Get(gomock.Any(), domain.StockKey{ProductID: 7, WarehouseID: 3}).
		Return(&domain.StockEntry{ProductID: 7, WarehouseID: 3, Quantity: 12, UpdatedAt: time.Now()}, nil)
	alerts.EXPECT().ListThresholds(gomock.Any()).Return(nil, nil)
	orders.EXPECT().Receive(gomock.Any(), int64(9)).Return(helpers.CreateTestPurchaseOrder(func(po *domain.PurchaseOrder) {
		po.ID = 9
		po.Status = domain.POStatusReceived
	}), nil)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Handlers{
		Health:         handlers.NewHealthHandler(helpers.LoadTestConfig(), logger),
		Stock:          handlers.NewStockHandler(ledger, logger),
		Directory:      handlers.NewDirectoryHandler(mocks.NewMockWarehouseService(ctrl), mocks.NewMockSupplierService(ctrl), logger),
		PurchaseOrders: handlers.NewPurchaseOrderHandler(orders, logger),
		Alerts:         handlers.NewAlertHandler(alerts, logger),
		Reports:        handlers.NewReportHandler(mocks.NewMockReportService(ctrl), mocks.NewMockJobRepository(ctrl), &fakeEnqueuer{}, handlers.JobQueueConfig{}, false, logger),
		Imports:        handlers.NewImportHandler(mocks.NewMockJobRepository(ctrl), &fakeEnqueuer{}, handlers.ImportConfig{UploadDir: t.TempDir()}, logger),
	})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/ready", http.StatusOK},
		{"GET", "/api/v1/stock/7/3", http.StatusOK},
		{"GET", "/api/v1/alerts/thresholds", http.StatusOK},
		{"PATCH", "/api/v1/purchase-orders/9/receive", http.StatusOK},
		{"POST", "/api/v1/purchase-orders/9/receive", http.StatusMethodNotAllowed},
		{"GET", "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

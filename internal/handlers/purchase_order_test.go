package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/handlers"
	"github.com/ammerola/stockflow/test/helpers"
	"github.com/ammerola/stockflow/test/mocks"
)

func TestPurchaseOrderHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockPurchaseOrderService)
		expectedStatus int
	}{
		{
			name: "creates_order",
			body: `{"supplierId":1,"warehouseId":2,"items":[{"productId":10,"quantity":5}]}`,
			setupMocks: func(m *mocks.MockPurchaseOrderService) {
				m.EXPECT().Create(gomock.Any(), ports.CreatePurchaseOrderInput{
					SupplierID:  1,
					WarehouseID: 2,
					Items:       []domain.POItem{{ProductID: 10, Quantity: 5}},
				}).Return(helpers.CreateTestPurchaseOrder(func(po *domain.PurchaseOrder) { po.ID = 9 }), nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "unknown_supplier",
			body: `{"supplierId":99,"warehouseId":2,"items":[{"productId":10,"quantity":5}]}`,
			setupMocks: func(m *mocks.MockPurchaseOrderService) {
				m.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, domain.NewNotFoundError("supplier", 99))
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "no_items",
			body: `{"supplierId":1,"warehouseId":2,"items":[]}`,
			setupMocks: func(m *mocks.MockPurchaseOrderService) {
				m.EXPECT().Create(gomock.Any(), gomock.Any()).
					Return(nil, domain.NewValidationError("purchase order must have at least one item"))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty_body",
			body:           ``,
			setupMocks:     func(m *mocks.MockPurchaseOrderService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			orders := mocks.NewMockPurchaseOrderService(ctrl)
			tt.setupMocks(orders)

			handler := handlers.NewPurchaseOrderHandler(orders, helpers.TestLogger())
			w := httptest.NewRecorder()
			handler.Create(w, httptest.NewRequest("POST", "/api/v1/purchase-orders", strings.NewReader(tt.body)))

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestPurchaseOrderHandler_List(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		wantFilter     *domain.PurchaseOrderFilter
		expectedStatus int
	}{
		{
			name:           "no_filter",
			query:          "",
			wantFilter:     &domain.PurchaseOrderFilter{},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "status_list_and_supplier",
			query: "?status=created,RECEIVED&supplier_id=4",
			wantFilter: &domain.PurchaseOrderFilter{
				Statuses:   []domain.POStatus{domain.POStatusCreated, domain.POStatusReceived},
				SupplierID: 4,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown_status",
			query:          "?status=shipped",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			orders := mocks.NewMockPurchaseOrderService(ctrl)
			if tt.wantFilter != nil {
				orders.EXPECT().List(gomock.Any(), *tt.wantFilter).Return([]*domain.PurchaseOrder{}, nil)
			}

			handler := handlers.NewPurchaseOrderHandler(orders, helpers.TestLogger())
			w := httptest.NewRecorder()
			handler.List(w, httptest.NewRequest("GET", "/api/v1/purchase-orders"+tt.query, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestPurchaseOrderHandler_Receive(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		setupMocks     func(*mocks.MockPurchaseOrderService)
		expectedStatus int
	}{
		{
			name: "receives_order",
			id:   "9",
			setupMocks: func(m *mocks.MockPurchaseOrderService) {
				m.EXPECT().Receive(gomock.Any(), int64(9)).Return(helpers.CreateTestPurchaseOrder(func(po *domain.PurchaseOrder) {
					po.ID = 9
					po.Status = domain.POStatusReceived
				}), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "already_received",
			id:   "9",
			setupMocks: func(m *mocks.MockPurchaseOrderService) {
				m.EXPECT().Receive(gomock.Any(), int64(9)).
					Return(nil, domain.NewInvalidStateError("purchase order 9 is already RECEIVED"))
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "missing_order",
			id:   "404",
			setupMocks: func(m *mocks.MockPurchaseOrderService) {
				m.EXPECT().Receive(gomock.Any(), int64(404)).Return(nil, domain.NewNotFoundError("purchase order", 404))
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "bad_id",
			id:             "0",
			setupMocks:     func(m *mocks.MockPurchaseOrderService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			orders := mocks.NewMockPurchaseOrderService(ctrl)
			tt.setupMocks(orders)

			handler := handlers.NewPurchaseOrderHandler(orders, helpers.TestLogger())
			req := httptest.NewRequest("PATCH", "/api/v1/purchase-orders/"+tt.id+"/receive", nil)
			req.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()

			handler.Receive(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				po := decodeBody[domain.PurchaseOrder](t, w)
				assert.Equal(t, domain.POStatusReceived, po.Status)
			}
		})
	}
}

package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/database"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"
	"github.com/ahmet0524/pastirmaadasi-sub000/notify"
	"github.com/ahmet0524/pastirmaadasi-sub000/orchestrator"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type mockOfflineOrders struct {
	req orchestrator.OfflineOrderRequest
	err error
}

func (m *mockOfflineOrders) PlaceOfflineOrder(ctx context.Context, req orchestrator.OfflineOrderRequest) (orchestrator.Result, *models.Order, error) {
	m.req = req
	if m.err != nil {
		return orchestrator.Result{Status: orchestrator.StatusError, ErrorMessage: m.err.Error()}, nil, m.err
	}
	order := &models.Order{OrderNumber: "ORD-CASH1", PaymentMethod: req.PaymentMethod, Status: models.OrderStatusPending}
	return orchestrator.Result{Status: orchestrator.StatusSuccess, OrderNumber: order.OrderNumber}, order, nil
}

type mockTrackingNotifier struct {
	notices []notify.TrackingNotice
}

func (m *mockTrackingNotifier) SendTracking(ctx context.Context, n notify.TrackingNotice) (string, error) {
	m.notices = append(m.notices, n)
	return "msg-1", nil
}

type mockPublisher struct {
	events []models.OrderEvent
}

func (m *mockPublisher) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	m.events = append(m.events, event)
	return nil
}

type orderTestDeps struct {
	db        *sql.DB
	mock      sqlmock.Sqlmock
	offline   *mockOfflineOrders
	notifier  *mockTrackingNotifier
	publisher *mockPublisher
	router    *gin.Engine
}

func setupOrderTest(t *testing.T) *orderTestDeps {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	deps := &orderTestDeps{
		db:        db,
		mock:      mock,
		offline:   &mockOfflineOrders{},
		notifier:  &mockTrackingNotifier{},
		publisher: &mockPublisher{},
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewOrderHandler(deps.offline, database.NewOrderStore(db), deps.notifier, deps.publisher, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/orders/cash", handler.CreateCashOrder)
	router.GET("/api/orders/:orderNumber", handler.GetOrder)
	router.POST("/api/orders/:orderNumber/tracking", handler.UpdateTracking)
	deps.router = router

	return deps
}

func orderColumnsRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "order_number", "payment_id", "customer_name", "customer_email", "customer_phone", "shipping_address",
		"items", "subtotal", "discount_amount", "total", "status", "payment_method", "coupon_codes", "tracking_number", "created_at",
	}).AddRow(
		1, "ORD-1", "2750123", "Ayse Yilmaz", "ayse@example.com", "", "Kayseri",
		`[]`, "0", "0", "0", status, "credit-card", "{A}", "TR123", time.Now(),
	)
}

func TestOrderHandler_CreateCashOrder(t *testing.T) {
	deps := setupOrderTest(t)
	defer deps.db.Close()

	w := postJSON(deps.router, "/api/orders/cash", map[string]any{
		"paymentMethod": "cash-on-delivery",
		"customer":      map[string]any{"name": "Mehmet", "email": "mehmet@example.com"},
		"items":         []map[string]any{{"name": "Sucuk", "unitPrice": "199.99", "quantity": 1}},
		"couponCodes":   []string{"a"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if deps.offline.req.PaymentMethod != models.PaymentMethodCashOnDelivery {
		t.Errorf("Expected cash-on-delivery, got %s", deps.offline.req.PaymentMethod)
	}
	if len(deps.offline.req.Items) != 1 || deps.offline.req.Items[0].Quantity != 1 {
		t.Errorf("Unexpected items: %+v", deps.offline.req.Items)
	}
}

func TestOrderHandler_CreateCashOrder_Invalid(t *testing.T) {
	deps := setupOrderTest(t)
	defer deps.db.Close()

	w := postJSON(deps.router, "/api/orders/cash", map[string]any{"paymentMethod": "cash-on-delivery"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	deps.offline.err = orchestrator.ErrValidation
	w = postJSON(deps.router, "/api/orders/cash", map[string]any{
		"paymentMethod": "credit-card",
		"items":         []map[string]any{{"name": "Sucuk", "unitPrice": "1", "quantity": 1}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestOrderHandler_GetOrder(t *testing.T) {
	deps := setupOrderTest(t)
	defer deps.db.Close()

	deps.mock.ExpectQuery("SELECT (.+) FROM orders WHERE order_number = \\$1").
		WithArgs("ORD-1").
		WillReturnRows(orderColumnsRow("paid"))
	deps.mock.ExpectQuery("SELECT (.+) FROM orders WHERE order_number = \\$1").
		WithArgs("ORD-404").
		WillReturnError(sql.ErrNoRows)

	tests := []struct {
		path         string
		expectedCode int
	}{
		{"/api/orders/ORD-1", http.StatusOK},
		{"/api/orders/ORD-404", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		deps.router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.expectedCode {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.expectedCode, w.Code)
		}
	}

	if err := deps.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_UpdateTracking_Shipped(t *testing.T) {
	deps := setupOrderTest(t)
	defer deps.db.Close()

	deps.mock.ExpectQuery("UPDATE orders SET tracking_number = \\$1, status = \\$2").
		WithArgs("TR123", "shipped", "ORD-1").
		WillReturnRows(orderColumnsRow("shipped"))

	w := postJSON(deps.router, "/api/orders/ORD-1/tracking", map[string]any{"trackingNumber": "TR123"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if len(deps.notifier.notices) != 1 || deps.notifier.notices[0].TrackingNumber != "TR123" {
		t.Errorf("Expected one tracking email, got %+v", deps.notifier.notices)
	}
	if len(deps.publisher.events) != 0 {
		t.Errorf("Expected no events for a shipment, got %d", len(deps.publisher.events))
	}
	if err := deps.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_UpdateTracking_CancelledPublishesEvent(t *testing.T) {
	deps := setupOrderTest(t)
	defer deps.db.Close()

	deps.mock.ExpectQuery("UPDATE orders SET tracking_number = \\$1, status = \\$2").
		WithArgs("-", "cancelled", "ORD-1").
		WillReturnRows(orderColumnsRow("cancelled"))

	w := postJSON(deps.router, "/api/orders/ORD-1/tracking", map[string]any{"trackingNumber": "-", "status": "cancelled"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(deps.publisher.events) != 1 || deps.publisher.events[0].EventType != models.EventOrderCancelled {
		t.Errorf("Expected one order_cancelled event, got %+v", deps.publisher.events)
	}
	if len(deps.notifier.notices) != 0 {
		t.Errorf("Expected no tracking email for a cancellation")
	}
}

func TestOrderHandler_UpdateTracking_Validation(t *testing.T) {
	deps := setupOrderTest(t)
	defer deps.db.Close()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing tracking number", map[string]any{}},
		{"unknown status", map[string]any{"trackingNumber": "TR1", "status": "lost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(deps.router, "/api/orders/ORD-1/tracking", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

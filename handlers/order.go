package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ahmet0524/pastirmaadasi-sub000/database"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"
	"github.com/ahmet0524/pastirmaadasi-sub000/notify"
	"github.com/ahmet0524/pastirmaadasi-sub000/orchestrator"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OfflineOrders interface {
	PlaceOfflineOrder(ctx context.Context, req orchestrator.OfflineOrderRequest) (orchestrator.Result, *models.Order, error)
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	UpdateTracking(ctx context.Context, orderNumber, trackingNumber string, status models.OrderStatus) (*models.Order, error)
}

type TrackingNotifier interface {
	SendTracking(ctx context.Context, n notify.TrackingNotice) (string, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type OrderHandler struct {
	offline   OfflineOrders
	store     OrderStore
	notifier  TrackingNotifier
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderHandler accepts a nil notifier or publisher.
func NewOrderHandler(offline OfflineOrders, store OrderStore, notifier TrackingNotifier, publisher EventPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		offline:   offline,
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *OrderHandler) CreateCashOrder(c *gin.Context) {
	var req CashOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": orchestrator.StatusError, "errorMessage": err.Error()})
		return
	}

	result, order, err := h.offline.PlaceOfflineOrder(c.Request.Context(), orchestrator.OfflineOrderRequest{
		OrderNumber:   req.OrderNumber,
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
		Items:         toOrderItems(req.Items),
		Discount:      req.Discount,
		CouponCodes:   req.CouponCodes,
	})
	if err != nil {
		c.JSON(orchestrator.HTTPStatus(err), result)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      result.Status,
		"orderNumber": result.OrderNumber,
		"order":       order,
	})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("order-api").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	orderNumber := c.Param("orderNumber")
	span.SetAttributes(attribute.String("order.number", orderNumber))

	order, err := h.store.GetOrder(ctx, orderNumber)
	if errors.Is(err, database.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to get order", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// UpdateTracking is the fulfillment side: it sets the tracking number and
// status, then tells the customer their parcel shipped.
func (h *OrderHandler) UpdateTracking(c *gin.Context) {
	ctx, span := otel.Tracer("order-api").Start(c.Request.Context(), "UpdateTracking")
	defer span.End()
	traceID := middleware.GetTraceID(ctx)

	var req TrackingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = models.OrderStatusShipped
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	orderNumber := c.Param("orderNumber")
	order, err := h.store.UpdateTracking(ctx, orderNumber, req.TrackingNumber, req.Status)
	if errors.Is(err, database.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to update tracking", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Order tracking updated",
		zap.String("trace_id", traceID),
		zap.String("order_number", orderNumber),
		zap.String("status", string(order.Status)),
		zap.String("admin", c.GetString("admin_subject")),
	)

	if order.Status == models.OrderStatusCancelled && h.publisher != nil {
		event := models.OrderEvent{
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			Total:       order.Total,
			CouponCodes: order.CouponCodes,
			EventType:   models.EventOrderCancelled,
		}
		if order.PaymentID != nil {
			event.PaymentID = *order.PaymentID
		}
		if err := h.publisher.PublishOrderEvent(ctx, event); err != nil {
			h.logger.Error("Failed to publish order_cancelled event", zap.String("trace_id", traceID), zap.Error(err))
		}
	}

	emailSent := false
	if order.Status == models.OrderStatusShipped && h.notifier != nil {
		_, err := h.notifier.SendTracking(ctx, notify.TrackingNotice{
			OrderNumber:    order.OrderNumber,
			CustomerName:   order.Customer.Name,
			CustomerEmail:  order.Customer.Email,
			TrackingNumber: req.TrackingNumber,
			TrackingURL:    req.TrackingURL,
		})
		if err != nil {
			h.logger.Warn("Tracking email failed", zap.String("trace_id", traceID), zap.Error(err))
		}
		emailSent = err == nil
	}

	c.JSON(http.StatusOK, gin.H{"status": orchestrator.StatusSuccess, "order": order, "emailSent": emailSent})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Checkout interface {
	Initialize(ctx context.Context, draft gateway.DraftOrder) (*gateway.Checkout, error)
}

type Verifier interface {
	Verify(ctx context.Context, req orchestrator.VerifyRequest) (orchestrator.Result, error)
}

type PaymentHandler struct {
	checkout Checkout
	verifier Verifier
	siteURL  string
	logger   *zap.Logger
}

func NewPaymentHandler(checkout Checkout, verifier Verifier, siteURL string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		verifier: verifier,
		siteURL:  strings.TrimRight(siteURL, "/"),
		logger:   logger,
	}
}

func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	ctx, span := otel.Tracer("payment-api").Start(c.Request.Context(), "InitializePayment")
	defer span.End()
	traceID := middleware.GetTraceID(ctx)

	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": orchestrator.StatusError, "errorMessage": err.Error()})
		return
	}
	if req.Buyer.Name == "" || req.Buyer.Surname == "" || req.Buyer.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": orchestrator.StatusError, "errorMessage": "Müşteri bilgileri eksik."})
		return
	}

	draft := gateway.DraftOrder{
		Buyer:           req.Buyer,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	}
	if draft.Buyer.IP == "" {
		draft.Buyer.IP = c.ClientIP()
	}
	for i, item := range req.Items {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		if !item.Price.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"status": orchestrator.StatusError, "errorMessage": fmt.Sprintf("item %d has no price", i+1)})
			return
		}
		draft.Items = append(draft.Items, gateway.BasketItem{
			ID:       item.ID,
			Name:     item.Name,
			Category: item.Category,
			Price:    item.Price.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	span.SetAttributes(
		attribute.Int("basket.items", len(draft.Items)),
		attribute.String("basket.price", draft.Price().StringFixed(2)),
	)

	checkout, err := h.checkout.Initialize(ctx, draft)
	if err != nil {
		span.RecordError(err)
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			h.logger.Warn("Payment initialization rejected",
				zap.String("trace_id", traceID),
				zap.String("error_code", rejected.Code),
				zap.String("error_message", rejected.Message),
			)
			c.JSON(http.StatusBadRequest, gin.H{
				"status":       orchestrator.StatusError,
				"errorMessage": rejected.Message,
				"errorCode":    rejected.Code,
			})
			return
		}
		h.logger.Error("Payment initialization failed", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": orchestrator.StatusError, "errorMessage": "Ödeme oluşturulamadı"})
		return
	}

	h.logger.Info("Checkout form initialized",
		zap.String("trace_id", traceID),
		zap.String("conversation_id", checkout.ConversationID),
	)
	c.JSON(http.StatusOK, gin.H{
		"status":         orchestrator.StatusSuccess,
		"paymentPageUrl": checkout.PaymentPageURL,
		"token":          checkout.Token,
	})
}

// PaymentCallback is where the processor sends the browser after the hosted
// form. It only forwards the token to the result page, verification happens
// there.
func (h *PaymentHandler) PaymentCallback(c *gin.Context) {
	token := strings.TrimSpace(callbackToken(c))

	target := h.siteURL + "/odeme-sonuc?error=no-token"
	if token != "" {
		target = h.siteURL + "/odeme-sonuc?token=" + url.QueryEscape(token)
	} else {
		h.logger.Warn("Payment callback without token",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("content_type", c.ContentType()),
		)
	}
	c.Redirect(http.StatusFound, target)
}

func callbackToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" || c.Request.Method != http.MethodPost {
		return token
	}

	if c.ContentType() == gin.MIMEPOSTForm || c.ContentType() == gin.MIMEMultipartPOSTForm {
		return c.PostForm("token")
	}

	var body struct {
		Token string `json:"token"`
	}
	raw, err := c.GetRawData()
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		return body.Token
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return ""
	}
	return values.Get("token")
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": orchestrator.StatusError, "errorMessage": err.Error()})
		return
	}

	customer := req.Customer
	if customer.Email == "" {
		customer.Email = req.CustomerEmail
	}
	if customer.Name == "" {
		customer.Name = strings.TrimSpace(req.CustomerName + " " + req.CustomerSurname)
	}

	result, err := h.verifier.Verify(c.Request.Context(), orchestrator.VerifyRequest{
		Token:       req.Token,
		OrderNumber: req.OrderNumber,
		Customer:    customer,
		Items:       toOrderItems(req.Items),
		Discount:    req.Discount,
		CouponCodes: req.CouponCodes,
	})
	if errors.Is(err, orchestrator.ErrOrderNotStored) {
		// Paid but unrecorded: the customer sees success, operations get an alert.
		h.logger.Error("Confirmed payment without stored order",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("payment_id", result.PaymentID),
			zap.String("order_number", result.OrderNumber),
			zap.Error(err),
		)
	}
	c.JSON(orchestrator.HTTPStatus(err), result)
}

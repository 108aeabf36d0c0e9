package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/cache"
	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"
	"github.com/ahmet0524/pastirmaadasi-sub000/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// persistTimeout bounds the order insert once it is detached from the
// caller's context.
const persistTimeout = 10 * time.Second

type State string

const (
	StateReceived                State = "received"
	StateGatewayVerifying        State = "gateway_verifying"
	StateConfirmed               State = "confirmed"
	StateRejected                State = "rejected"
	StateGatewayUnreachable      State = "gateway_unreachable"
	StatePersisted               State = "persisted"
	StateNotificationsDispatched State = "notifications_dispatched"
	StateDone                    State = "done"
)

type Gateway interface {
	Retrieve(ctx context.Context, token string) (models.PaymentVerdict, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error)
}

type VerdictCache interface {
	Lookup(ctx context.Context, token string) (*cache.Verification, error)
	Remember(ctx context.Context, token string, v cache.Verification) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type Notifier interface {
	DispatchOrderConfirmation(ctx context.Context, oc notify.OrderConfirmation) []notify.Delivery
}

type VerifyRequest struct {
	Token       string
	OrderNumber string
	Customer    models.Customer
	Items       []models.OrderItem
	Discount    decimal.Decimal
	CouponCodes []string
}

type OfflineOrderRequest struct {
	OrderNumber   string
	PaymentMethod models.PaymentMethod
	Customer      models.Customer
	Items         []models.OrderItem
	Discount      decimal.Decimal
	CouponCodes   []string
}

// Result is the single verdict object handed back to callers.
type Result struct {
	Status       string `json:"status"`
	PaymentID    string `json:"paymentId,omitempty"`
	OrderNumber  string `json:"orderNumber,omitempty"`
	PaidPrice    string `json:"paidPrice,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func errorResult(err error) Result {
	msg := err.Error()
	var rejected *gateway.RejectedError
	if errors.As(err, &rejected) {
		msg = rejected.Message
	}
	return Result{Status: StatusError, ErrorMessage: msg}
}

// Orchestrator runs one sequential verification pipeline per request.
// Cache and Publisher are optional.
type Orchestrator struct {
	Gateway   Gateway
	Orders    OrderStore
	Cache     VerdictCache
	Publisher EventPublisher
	Notifier  Notifier
	Logger    *zap.Logger

	inflight sync.WaitGroup
}

func (o *Orchestrator) transition(ctx context.Context, token string, state State, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("token", shortToken(token)),
		zap.String("state", string(state)),
	}, fields...)
	o.Logger.Info("Verification state", fields...)
}

// Verify confirms token with the processor and records the order. Once the
// processor confirmed the payment the result is success, even when the order
// could not be stored; that case also returns an error wrapping
// ErrOrderNotStored.
func (o *Orchestrator) Verify(ctx context.Context, req VerifyRequest) (Result, error) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "Verify")
	defer span.End()

	token := strings.TrimSpace(req.Token)
	o.transition(ctx, token, StateReceived)
	if err := validateVerify(token, req); err != nil {
		middleware.RecordPaymentVerification("invalid")
		return errorResult(err), err
	}

	if cached := o.lookup(ctx, token); cached != nil {
		middleware.RecordPaymentVerification("cached")
		o.transition(ctx, token, StateDone, zap.Bool("cached", true))
		return Result{Status: StatusSuccess, PaymentID: cached.PaymentID, OrderNumber: cached.OrderNumber}, nil
	}

	o.transition(ctx, token, StateGatewayVerifying)
	verdict, err := o.Gateway.Retrieve(ctx, token)
	if err != nil {
		span.RecordError(err)
		middleware.RecordPaymentVerification("unreachable")
		o.transition(ctx, token, StateGatewayUnreachable, zap.Error(err))
		return errorResult(err), err
	}
	if !verdict.Succeeded() {
		err := &gateway.RejectedError{Code: verdict.ErrorCode, Message: verdict.ErrorMessage}
		if err.Message == "" {
			err.Message = "Ödeme başarısız"
		}
		middleware.RecordPaymentVerification("rejected")
		o.transition(ctx, token, StateRejected,
			zap.String("status", verdict.RawStatus),
			zap.String("payment_status", verdict.PaymentStatus),
		)
		return errorResult(err), err
	}

	middleware.RecordPaymentVerification("confirmed")
	o.transition(ctx, token, StateConfirmed, zap.String("payment_id", verdict.PaymentID))
	span.SetAttributes(attribute.String("payment.id", verdict.PaymentID))

	order, err := o.buildPaidOrder(token, req, verdict)
	if err != nil {
		// The card was charged; a cart that disagrees with itself must not
		// turn that into a failure for the customer.
		o.Logger.Error("Confirmed payment has an inconsistent cart",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("payment_id", verdict.PaymentID),
			zap.Error(err),
		)
		order = fallbackOrder(token, req, verdict)
	}
	if n := strings.TrimSpace(req.OrderNumber); n != "" && n != order.OrderNumber {
		o.Logger.Info("Client order number superseded by payment id",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("client_order_number", n),
			zap.String("order_number", order.OrderNumber),
		)
	}
	result := Result{
		Status:      StatusSuccess,
		PaymentID:   verdict.PaymentID,
		OrderNumber: order.OrderNumber,
		PaidPrice:   verdict.PaidAmount.StringFixed(2),
	}

	stored, created, persistErr := o.persist(ctx, token, order)
	if persistErr == nil {
		o.remember(ctx, token, result)
	}

	// A duplicate callback for a stored order stays silent. An order that
	// could not be stored still notifies so the admin learns about the payment.
	if persistErr != nil || created {
		o.afterCommit(ctx, stored, created, models.EventOrderPaid)
	}
	if persistErr != nil {
		return result, fmt.Errorf("%w: %w", ErrOrderNotStored, persistErr)
	}
	return result, nil
}

// PlaceOfflineOrder records a cash-on-delivery or bank-transfer order. It is
// idempotent on the order number.
func (o *Orchestrator) PlaceOfflineOrder(ctx context.Context, req OfflineOrderRequest) (Result, *models.Order, error) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "PlaceOfflineOrder")
	defer span.End()

	if req.PaymentMethod != models.PaymentMethodCashOnDelivery && req.PaymentMethod != models.PaymentMethodBankTransfer {
		err := fmt.Errorf("%w: unsupported payment method %q", ErrValidation, req.PaymentMethod)
		return errorResult(err), nil, err
	}
	if len(req.Items) == 0 {
		err := fmt.Errorf("%w: order has no items", ErrValidation)
		return errorResult(err), nil, err
	}

	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		orderNumber = "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	}

	order, err := models.NewOrder(orderNumber, req.Customer, req.Items, req.Discount, req.PaymentMethod, models.OrderStatusPending, req.CouponCodes)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrValidation, err)
		return errorResult(err), nil, err
	}

	stored, created, err := o.Orders.CreateOrder(ctx, order)
	if err != nil {
		span.RecordError(err)
		middleware.RecordOrderPersisted("failed")
		o.Logger.Error("Failed to store offline order",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_number", orderNumber),
			zap.Error(err),
		)
		return errorResult(err), nil, err
	}
	middleware.RecordOrderPersisted(persistResult(created))

	if created {
		o.afterCommit(ctx, stored, true, models.EventOrderCreated)
	}
	return Result{Status: StatusSuccess, OrderNumber: stored.OrderNumber}, stored, nil
}

// Wait blocks until every background dispatch finished or ctx expires.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist stores a confirmed order. The charge already happened, so the write
// outlives a caller that hung up.
func (o *Orchestrator) persist(ctx context.Context, token string, order *models.Order) (*models.Order, bool, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	stored, created, err := o.Orders.CreateOrder(writeCtx, order)
	if err != nil {
		middleware.RecordOrderPersisted("failed")
		o.Logger.Error("Failed to persist confirmed order",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("token", shortToken(token)),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
		return order, false, err
	}

	middleware.RecordOrderPersisted(persistResult(created))
	o.transition(ctx, token, StatePersisted,
		zap.String("order_number", stored.OrderNumber),
		zap.Bool("created", created),
	)
	return stored, created, nil
}

// afterCommit notifies and, for newly created orders, publishes in the
// background. Neither outcome reaches the caller.
func (o *Orchestrator) afterCommit(ctx context.Context, order *models.Order, created bool, eventType string) {
	bg := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		if o.Notifier != nil {
			o.Notifier.DispatchOrderConfirmation(bg, confirmationFor(order))
			o.Logger.Info("Verification state",
				zap.String("trace_id", middleware.GetTraceID(bg)),
				zap.String("order_number", order.OrderNumber),
				zap.String("state", string(StateNotificationsDispatched)),
			)
		}
		if o.Publisher != nil && created {
			if err := o.Publisher.PublishOrderEvent(bg, eventFor(order, eventType)); err != nil {
				o.Logger.Error("Failed to publish order event",
					zap.String("trace_id", middleware.GetTraceID(bg)),
					zap.String("order_number", order.OrderNumber),
					zap.Error(err),
				)
			}
		}
	}()
}

func (o *Orchestrator) lookup(ctx context.Context, token string) *cache.Verification {
	if o.Cache == nil {
		return nil
	}
	v, err := o.Cache.Lookup(ctx, token)
	if err != nil {
		o.Logger.Warn("Verdict cache lookup failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Error(err),
		)
		return nil
	}
	return v
}

func (o *Orchestrator) remember(ctx context.Context, token string, r Result) {
	if o.Cache == nil {
		return
	}
	err := o.Cache.Remember(ctx, token, cache.Verification{
		Status:      r.Status,
		PaymentID:   r.PaymentID,
		OrderNumber: r.OrderNumber,
	})
	if err != nil {
		o.Logger.Warn("Verdict cache write failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Error(err),
		)
	}
}

func validateVerify(token string, req VerifyRequest) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	if req.Discount.IsNegative() {
		return fmt.Errorf("%w: negative discount", ErrValidation)
	}
	for i, item := range req.Items {
		if item.Quantity < 0 || item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d has a negative price or quantity", ErrValidation, i)
		}
	}
	if len(req.Items) > 0 && req.Discount.GreaterThan(models.Subtotal(req.Items)) {
		return fmt.Errorf("%w: discount exceeds subtotal", ErrValidation)
	}
	return nil
}

// orderNumberFor keys a card order on the processor's payment id so every
// retry of one payment lands on the same row. The client's number is used
// only when the processor did not return an id.
func orderNumberFor(token string, req VerifyRequest, verdict models.PaymentVerdict) string {
	if verdict.PaymentID != "" {
		return "ORD-" + verdict.PaymentID
	}
	if n := strings.TrimSpace(req.OrderNumber); n != "" {
		return n
	}
	sum := sha256.Sum256([]byte(token))
	return "ORD-" + strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}

func (o *Orchestrator) buildPaidOrder(token string, req VerifyRequest, verdict models.PaymentVerdict) (*models.Order, error) {
	items := req.Items
	discount := req.Discount
	if len(items) == 0 {
		items, discount = processorItems(verdict)
	}

	order, err := models.NewOrder(orderNumberFor(token, req, verdict), customerFor(req, verdict), items, discount, models.PaymentMethodCard, models.OrderStatusPaid, req.CouponCodes)
	if err != nil {
		return nil, err
	}
	paymentID := verdict.PaymentID
	order.PaymentID = &paymentID

	if !verdict.PaidAmount.IsZero() && !order.Total.Equal(verdict.PaidAmount) {
		o.Logger.Warn("Paid amount differs from order total",
			zap.String("payment_id", paymentID),
			zap.String("paid", verdict.PaidAmount.String()),
			zap.String("total", order.Total.String()),
		)
	}
	return order, nil
}

func fallbackOrder(token string, req VerifyRequest, verdict models.PaymentVerdict) *models.Order {
	paymentID := verdict.PaymentID
	items := []models.OrderItem{{Name: "Online sipariş", UnitPrice: verdict.PaidAmount, Quantity: 1}}
	subtotal := models.Subtotal(items)
	return &models.Order{
		OrderNumber:   orderNumberFor(token, req, verdict),
		PaymentID:     &paymentID,
		Customer:      customerFor(req, verdict),
		Items:         items,
		Subtotal:      subtotal,
		Discount:      decimal.Zero,
		Total:         subtotal,
		PaymentMethod: models.PaymentMethodCard,
		Status:        models.OrderStatusPaid,
		CouponCodes:   models.NormalizeCouponCodes(req.CouponCodes),
	}
}

// processorItems rebuilds the cart from the basket the processor echoed.
// Whatever the basket exceeds the paid amount by is booked as discount; an
// unusable basket becomes a single line at the paid amount.
func processorItems(verdict models.PaymentVerdict) ([]models.OrderItem, decimal.Decimal) {
	single := []models.OrderItem{{Name: "Online sipariş", UnitPrice: verdict.PaidAmount, Quantity: 1}}
	if len(verdict.BasketItems) == 0 {
		return single, decimal.Zero
	}
	for _, item := range verdict.BasketItems {
		if item.UnitPrice.IsNegative() {
			return single, decimal.Zero
		}
	}
	subtotal := models.Subtotal(verdict.BasketItems)
	if subtotal.LessThan(verdict.PaidAmount) {
		return single, decimal.Zero
	}
	return verdict.BasketItems, subtotal.Sub(verdict.PaidAmount)
}

// customerFor fills whatever the caller left empty from the buyer the
// processor recorded.
func customerFor(req VerifyRequest, verdict models.PaymentVerdict) models.Customer {
	c := req.Customer
	if strings.TrimSpace(c.Name) == "" {
		c.Name = verdict.Buyer.Name
	}
	if strings.TrimSpace(c.Email) == "" {
		c.Email = verdict.Buyer.Email
	}
	if strings.TrimSpace(c.Phone) == "" {
		c.Phone = verdict.Buyer.Phone
	}
	if strings.TrimSpace(c.Address) == "" {
		c.Address = verdict.Buyer.Address
	}
	return c
}

func confirmationFor(order *models.Order) notify.OrderConfirmation {
	oc := notify.OrderConfirmation{
		OrderNumber:   order.OrderNumber,
		PaymentMethod: order.PaymentMethod,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		CustomerPhone: order.Customer.Phone,
		Address:       order.Customer.Address,
		Items:         order.Items,
		Total:         order.Total,
	}
	if order.PaymentID != nil {
		oc.PaymentID = *order.PaymentID
	}
	return oc
}

func eventFor(order *models.Order, eventType string) models.OrderEvent {
	ev := models.OrderEvent{
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Total:       order.Total,
		CouponCodes: order.CouponCodes,
		EventType:   eventType,
	}
	if order.PaymentID != nil {
		ev.PaymentID = *order.PaymentID
	}
	return ev
}

func persistResult(created bool) string {
	if created {
		return "created"
	}
	return "existing"
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "credit-card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash-on-delivery"
	PaymentMethodBankTransfer   PaymentMethod = "bank-transfer"
)

var ErrInvalidOrder = errors.New("invalid order")

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type OrderItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is UnitPrice * Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID             int64           `json:"id"`
	OrderNumber    string          `json:"order_number"`
	PaymentID      *string         `json:"payment_id"`
	Customer       Customer        `json:"customer"`
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Status         OrderStatus     `json:"status"`
	CouponCodes    []string        `json:"coupon_codes"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewOrder derives Subtotal and Total from the items and discount so the
// totals invariant holds by construction.
func NewOrder(
	orderNumber string,
	customer Customer,
	items []OrderItem,
	discount decimal.Decimal,
	method PaymentMethod,
	status OrderStatus,
	couponCodes []string,
) (*Order, error) {
	subtotal := Subtotal(items)
	order := &Order{
		OrderNumber:   orderNumber,
		Customer:      customer,
		Items:         items,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         subtotal.Sub(discount),
		PaymentMethod: method,
		Status:        status,
		CouponCodes:   NormalizeCouponCodes(couponCodes),
		CreatedAt:     time.Now().UTC(),
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Validate checks total = subtotal - discount and subtotal = sum(unitPrice*quantity).
func (o *Order) Validate() error {
	if strings.TrimSpace(o.OrderNumber) == "" {
		return fmt.Errorf("%w: order number is required", ErrInvalidOrder)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, o.Status)
	}
	for i, item := range o.Items {
		if item.Quantity < 0 || item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d has a negative price or quantity", ErrInvalidOrder, i)
		}
	}
	if o.Discount.IsNegative() {
		return fmt.Errorf("%w: negative discount", ErrInvalidOrder)
	}
	if !o.Subtotal.Equal(Subtotal(o.Items)) {
		return fmt.Errorf("%w: subtotal %s does not match items", ErrInvalidOrder, o.Subtotal)
	}
	if !o.Total.Equal(o.Subtotal.Sub(o.Discount)) {
		return fmt.Errorf("%w: total %s != subtotal %s - discount %s", ErrInvalidOrder, o.Total, o.Subtotal, o.Discount)
	}
	if o.Total.IsNegative() {
		return fmt.Errorf("%w: discount exceeds subtotal", ErrInvalidOrder)
	}
	return nil
}

func Subtotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeCouponCodes returns the applied codes as a sorted set.
func NormalizeCouponCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = NormalizeCouponCode(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type OrderEvent struct {
	OrderNumber string          `json:"order_number"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Status      OrderStatus     `json:"status"`
	Total       decimal.Decimal `json:"total"`
	CouponCodes []string        `json:"coupon_codes,omitempty"`
	EventType   string          `json:"event_type"` // order_created, order_paid, order_cancelled
}

const (
	EventOrderCreated   = "order_created"
	EventOrderPaid      = "order_paid"
	EventOrderCancelled = "order_cancelled"
)

package handlers

import (
	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/shopspring/decimal"
)

type cartItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name" binding:"required"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" binding:"gte=0"`
}

type InitializePaymentRequest struct {
	Buyer           gateway.Buyer    `json:"buyer"`
	ShippingAddress gateway.Address  `json:"shippingAddress"`
	BillingAddress  *gateway.Address `json:"billingAddress"`
	Items           []cartItem       `json:"items" binding:"required,min=1,dive"`
}

type orderLine struct {
	Name      string          `json:"name" binding:"required"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity" binding:"gte=0"`
}

func toOrderItems(lines []orderLine) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItem{Name: l.Name, UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	return items
}

// VerifyPaymentRequest also accepts the flat customerEmail/customerName/
// customerSurname fields older checkout pages send.
type VerifyPaymentRequest struct {
	Token           string          `json:"token"`
	OrderNumber     string          `json:"orderNumber"`
	Customer        models.Customer `json:"customer"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerName    string          `json:"customerName"`
	CustomerSurname string          `json:"customerSurname"`
	Items           []orderLine     `json:"items" binding:"dive"`
	Discount        decimal.Decimal `json:"discount"`
	CouponCodes     []string        `json:"couponCodes"`
}

type CashOrderRequest struct {
	OrderNumber   string               `json:"orderNumber"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" binding:"required"`
	Customer      models.Customer      `json:"customer"`
	Items         []orderLine          `json:"items" binding:"required,min=1,dive"`
	Discount      decimal.Decimal      `json:"discount"`
	CouponCodes   []string             `json:"couponCodes"`
}

type TrackingUpdateRequest struct {
	TrackingNumber string             `json:"trackingNumber" binding:"required"`
	TrackingURL    string             `json:"trackingUrl"`
	Status         models.OrderStatus `json:"status"`
}

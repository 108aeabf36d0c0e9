package gateway

import (
	"github.com/shopspring/decimal"
)

type Buyer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Surname        string `json:"surname"`
	Email          string `json:"email"`
	GSMNumber      string `json:"gsm_number"`
	IdentityNumber string `json:"identity_number"`
	Address        string `json:"address"`
	City           string `json:"city"`
	Country        string `json:"country"`
	ZipCode        string `json:"zip_code"`
	IP             string `json:"ip"`
}

type Address struct {
	ContactName string `json:"contact_name"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
	ZipCode     string `json:"zip_code"`
}

// BasketItem carries the line price (unit price times quantity).
type BasketItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

// DraftOrder is the cart handed to Initialize. PaidPrice defaults to the
// basket total when zero.
type DraftOrder struct {
	BasketID        string          `json:"basket_id"`
	Buyer           Buyer           `json:"buyer"`
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  *Address        `json:"billing_address,omitempty"`
	Items           []BasketItem    `json:"items"`
	PaidPrice       decimal.Decimal `json:"paid_price"`
}

func (d DraftOrder) Price() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range d.Items {
		sum = sum.Add(item.Price)
	}
	return sum
}

type Checkout struct {
	PaymentPageURL string `json:"payment_page_url"`
	Token          string `json:"token"`
	ConversationID string `json:"conversation_id"`
}

// Wire formats. Field order is fixed by the struct so the same logical
// request always serializes to the same bytes.

type wireBuyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	GSMNumber           string `json:"gsmNumber,omitempty"`
	Email               string `json:"email"`
	IdentityNumber      string `json:"identityNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	IP                  string `json:"ip"`
	City                string `json:"city"`
	Country             string `json:"country"`
	ZipCode             string `json:"zipCode,omitempty"`
}

type wireAddress struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
	ZipCode     string `json:"zipCode,omitempty"`
}

type wireBasketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

type initializeRequest struct {
	Locale              string           `json:"locale"`
	ConversationID      string           `json:"conversationId"`
	Price               string           `json:"price"`
	PaidPrice           string           `json:"paidPrice"`
	Currency            string           `json:"currency"`
	BasketID            string           `json:"basketId"`
	PaymentGroup        string           `json:"paymentGroup"`
	CallbackURL         string           `json:"callbackUrl"`
	EnabledInstallments []int            `json:"enabledInstallments"`
	Buyer               wireBuyer        `json:"buyer"`
	ShippingAddress     wireAddress      `json:"shippingAddress"`
	BillingAddress      wireAddress      `json:"billingAddress"`
	BasketItems         []wireBasketItem `json:"basketItems"`
}

type initializeResponse struct {
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode"`
	ErrorMessage   string `json:"errorMessage"`
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	PaymentPageURL string `json:"paymentPageUrl"`
}

type retrieveRequest struct {
	Locale         string `json:"locale"`
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
}

type retrieveResponse struct {
	Status         string              `json:"status"`
	ErrorCode      string              `json:"errorCode"`
	ErrorMessage   string              `json:"errorMessage"`
	ConversationID string              `json:"conversationId"`
	PaymentStatus  string              `json:"paymentStatus"`
	PaymentID      string              `json:"paymentId"`
	PaidPrice      decimal.NullDecimal `json:"paidPrice"`
	BasketID       string              `json:"basketId"`
	Buyer          *retrievedBuyer     `json:"buyer"`
	ShippingAddr   *wireAddress        `json:"shippingAddress"`
	BasketItems    []retrievedItem     `json:"basketItems"`
}

type retrievedBuyer struct {
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	Email               string `json:"email"`
	GSMNumber           string `json:"gsmNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	City                string `json:"city"`
}

type retrievedItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

package models

import "github.com/shopspring/decimal"

type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailure PaymentOutcome = "failure"
)

// PaymentVerdict is the normalized processor answer for one payment token.
// It is passed by value and never modified after the gateway client builds it.
type PaymentVerdict struct {
	Outcome        PaymentOutcome  `json:"outcome"`
	PaymentID      string          `json:"payment_id"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	RawStatus      string          `json:"raw_status"`
	PaymentStatus  string          `json:"payment_status"`
	ConversationID string          `json:"conversation_id"`
	BasketID       string          `json:"basket_id,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`

	// Buyer and BasketItems echo what the processor recorded at checkout.
	// BasketItems carry line prices with quantity 1.
	Buyer       Customer    `json:"buyer"`
	BasketItems []OrderItem `json:"basket_items,omitempty"`
}

func (v PaymentVerdict) Succeeded() bool {
	return v.Outcome == PaymentOutcomeSuccess
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	ID                int64               `json:"id"`
	Code              string              `json:"code"`
	DiscountPercent   int                 `json:"discount_percent"`
	MinOrderAmount    decimal.Decimal     `json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	UsageLimit        *int                `json:"usage_limit"`
	UsedCount         int                 `json:"used_count"`
	ValidUntil        *time.Time          `json:"valid_until"`
	IsActive          bool                `json:"is_active"`
}

// CouponUsage is the coupon footprint of one non-cancelled order. Codes is
// the current list column, LegacyCode the older single-code column.
type CouponUsage struct {
	Codes      []string
	LegacyCode string
}

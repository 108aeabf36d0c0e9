package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CouponStore struct {
	db *sql.DB
}

func NewCouponStore(db *sql.DB) *CouponStore {
	return &CouponStore{db: db}
}

// ListCouponUsage reads the coupon columns of every order that still counts
// towards usage, i.e. everything not cancelled.
func (s *CouponStore) ListCouponUsage(ctx context.Context) ([]models.CouponUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT coupon_codes, coupon_code FROM orders WHERE status <> $1",
		models.OrderStatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list coupon usage: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var usage []models.CouponUsage
	for rows.Next() {
		var (
			codes  []string
			legacy sql.NullString
		)
		if err := rows.Scan(pq.Array(&codes), &legacy); err != nil {
			return nil, fmt.Errorf("failed to scan coupon usage: %w", err)
		}
		usage = append(usage, models.CouponUsage{Codes: codes, LegacyCode: legacy.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list coupon usage: %v", ErrUnavailable, err)
	}
	return usage, nil
}

func (s *CouponStore) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, discount_percent, min_order_amount, max_discount_amount, usage_limit, used_count, valid_until, is_active FROM coupons ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list coupons: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		var (
			c          models.Coupon
			minAmount  decimal.NullDecimal
			usageLimit sql.NullInt64
			validUntil sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Code, &c.DiscountPercent, &minAmount, &c.MaxDiscountAmount, &usageLimit, &c.UsedCount, &validUntil, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		c.MinOrderAmount = minAmount.Decimal
		if usageLimit.Valid {
			limit := int(usageLimit.Int64)
			c.UsageLimit = &limit
		}
		if validUntil.Valid {
			c.ValidUntil = &validUntil.Time
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list coupons: %v", ErrUnavailable, err)
	}
	return coupons, nil
}

func (s *CouponStore) SetUsedCount(ctx context.Context, couponID int64, count int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE coupons SET used_count = $1 WHERE id = $2",
		count, couponID,
	)
	if err != nil {
		return fmt.Errorf("%w: update coupon %d: %v", ErrUnavailable, couponID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("coupon %d not found", couponID)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrUnavailable wraps every failed write or read other than the
	// expected duplicate order number.
	ErrUnavailable   = errors.New("order store unavailable")
	ErrOrderNotFound = errors.New("order not found")
)

const orderColumns = "id, order_number, payment_id, customer_name, customer_email, customer_phone, shipping_address, items, subtotal, discount_amount, total, status, payment_method, coupon_codes, tracking_number, created_at"

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// CreateOrder inserts order unless its order number already exists. On a
// duplicate the stored row is returned with created=false and no error.
func (s *OrderStore) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	ctx, span := otel.Tracer("order-store").Start(ctx, "CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))

	if err := order.Validate(); err != nil {
		return nil, false, err
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal items: %w", err)
	}

	var paymentID sql.NullString
	if order.PaymentID != nil {
		paymentID = sql.NullString{String: *order.PaymentID, Valid: true}
	}
	// The single-code column is still read by older reports.
	var legacyCode sql.NullString
	if len(order.CouponCodes) > 0 {
		legacyCode = sql.NullString{String: order.CouponCodes[0], Valid: true}
	}
	codes := order.CouponCodes
	if codes == nil {
		codes = []string{}
	}

	stored := *order
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO orders (order_number, payment_id, customer_name, customer_email, customer_phone, shipping_address, items, subtotal, discount_amount, total, status, payment_method, coupon_codes, coupon_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (order_number) DO NOTHING
		RETURNING id, created_at`,
		order.OrderNumber,
		paymentID,
		order.Customer.Name,
		order.Customer.Email,
		order.Customer.Phone,
		order.Customer.Address,
		string(items),
		order.Subtotal,
		order.Discount,
		order.Total,
		order.Status,
		order.PaymentMethod,
		pq.Array(codes),
		legacyCode,
		order.CreatedAt,
	).Scan(&stored.ID, &stored.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := s.GetOrder(ctx, order.OrderNumber)
		if getErr != nil {
			span.RecordError(getErr)
			return nil, false, getErr
		}
		span.SetAttributes(attribute.Bool("order.created", false))
		return existing, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("%w: insert order %s: %v", ErrUnavailable, order.OrderNumber, err)
	}

	span.SetAttributes(attribute.Bool("order.created", true))
	return &stored, true, nil
}

func (s *OrderStore) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_number = $1",
		orderNumber,
	)
	return scanOrder(row)
}

// UpdateTracking records a shipment. It belongs to fulfillment and is never
// called from the payment verification path.
func (s *OrderStore) UpdateTracking(ctx context.Context, orderNumber, trackingNumber string, status models.OrderStatus) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"UPDATE orders SET tracking_number = $1, status = $2, updated_at = CURRENT_TIMESTAMP WHERE order_number = $3 RETURNING "+orderColumns,
		trackingNumber, status, orderNumber,
	)
	return scanOrder(row)
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	var (
		order     models.Order
		paymentID sql.NullString
		tracking  sql.NullString
		items     []byte
		codes     []string
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&paymentID,
		&order.Customer.Name,
		&order.Customer.Email,
		&order.Customer.Phone,
		&order.Customer.Address,
		&items,
		&order.Subtotal,
		&order.Discount,
		&order.Total,
		&order.Status,
		&order.PaymentMethod,
		pq.Array(&codes),
		&tracking,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if paymentID.Valid {
		order.PaymentID = &paymentID.String
	}
	order.TrackingNumber = tracking.String
	order.CouponCodes = codes
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items of %s: %w", order.OrderNumber, err)
		}
	}
	return &order, nil
}

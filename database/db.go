package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	order_number VARCHAR(64) UNIQUE NOT NULL,
	payment_id VARCHAR(64),
	customer_name VARCHAR(255) NOT NULL DEFAULT '',
	customer_email VARCHAR(255) NOT NULL DEFAULT '',
	customer_phone VARCHAR(64) NOT NULL DEFAULT '',
	shipping_address TEXT NOT NULL DEFAULT '',
	items JSONB NOT NULL DEFAULT '[]',
	subtotal NUMERIC(12, 2) NOT NULL,
	discount_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
	total NUMERIC(12, 2) NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'pending',
	payment_method VARCHAR(32) NOT NULL,
	coupon_codes TEXT[] NOT NULL DEFAULT '{}',
	coupon_code VARCHAR(64),
	tracking_number VARCHAR(128),
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS coupons (
	id BIGSERIAL PRIMARY KEY,
	code VARCHAR(64) UNIQUE NOT NULL,
	discount_percent INTEGER NOT NULL DEFAULT 0,
	min_order_amount NUMERIC(12, 2) DEFAULT 0,
	max_discount_amount NUMERIC(12, 2),
	usage_limit INTEGER,
	used_count INTEGER NOT NULL DEFAULT 0,
	valid_until TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func InitDB(cfg Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return db, nil
}

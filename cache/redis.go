package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func InitRedis(cfg Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr))
	return rdb, nil
}

// Verification is what a repeated callback for an already settled token
// gets back without another processor round-trip.
type Verification struct {
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id"`
	OrderNumber string `json:"order_number"`
}

type VerdictCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewVerdictCache(rdb *redis.Client, ttl time.Duration) *VerdictCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &VerdictCache{rdb: rdb, ttl: ttl}
}

func verdictKey(token string) string {
	return fmt.Sprintf("payment:verdict:%s", token)
}

// Lookup returns nil, nil on a miss.
func (c *VerdictCache) Lookup(ctx context.Context, token string) (*Verification, error) {
	data, err := c.rdb.Get(ctx, verdictKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v Verification
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("corrupt cache entry for token: %w", err)
	}
	return &v, nil
}

func (c *VerdictCache) Remember(ctx context.Context, token string, v Verification) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, verdictKey(token), data, c.ttl).Err()
}

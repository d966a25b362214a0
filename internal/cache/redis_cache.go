package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tiendaluna/backend/internal/domain"
)

type RedisTrackingCache struct {
	client *redis.Client
}

func NewRedisTrackingCache(addr string, password string, db int) *RedisTrackingCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTrackingCache{client: client}
}

func (c *RedisTrackingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTrackingCache) Close() error {
	return c.client.Close()
}

func trackingKey(orderNumber string) string {
	return "track:" + orderNumber
}

func (c *RedisTrackingCache) Get(ctx context.Context, orderNumber string) (*domain.Order, bool, error) {
	val, err := c.client.Get(ctx, trackingKey(orderNumber)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var order domain.Order
	if err := json.Unmarshal([]byte(val), &order); err != nil {
		return nil, false, err
	}
	return &order, true, nil
}

func (c *RedisTrackingCache) Set(ctx context.Context, orderNumber string, order *domain.Order, ttl time.Duration) error {
	if order == nil {
		return nil
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, trackingKey(orderNumber), payload, ttl).Err()
}

func (c *RedisTrackingCache) Invalidate(ctx context.Context, orderNumber string) error {
	return c.client.Del(ctx, trackingKey(orderNumber)).Err()
}

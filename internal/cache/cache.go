package cache

import (
	"context"
	"time"

	"tiendaluna/backend/internal/domain"
)

// TrackingCache fronts the public tracking lookup. Entries are
// invalidated on every status change, so a stale read can only last
// until the configured TTL after a missed invalidation.
type TrackingCache interface {
	Get(ctx context.Context, orderNumber string) (*domain.Order, bool, error)
	Set(ctx context.Context, orderNumber string, order *domain.Order, ttl time.Duration) error
	Invalidate(ctx context.Context, orderNumber string) error
}

type NoopTrackingCache struct{}

func (NoopTrackingCache) Get(context.Context, string) (*domain.Order, bool, error) {
	return nil, false, nil
}

func (NoopTrackingCache) Set(context.Context, string, *domain.Order, time.Duration) error {
	return nil
}

func (NoopTrackingCache) Invalidate(context.Context, string) error { return nil }

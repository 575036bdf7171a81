package redis

import (
	"context"
	"time"

	"dedicated/internal/domain"
)

// LocationStoreInterface defines the interface for live booking positions.
type LocationStoreInterface interface {
	SetLatest(ctx context.Context, update *domain.LocationUpdate) error
	GetLatest(ctx context.Context, bookingID string) (*domain.LocationUpdate, error)
	Remove(ctx context.Context, bookingID string) error
	Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]NearbyLocation, error)
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (string, error)
	Release(ctx context.Context, name, token string) error
}

// UserCacheInterface defines the interface for cached user lookups.
type UserCacheInterface interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	SetUser(ctx context.Context, user *domain.User) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ UserCacheInterface     = (*CacheStore)(nil)
)

package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"dedicated/internal/domain"
)

// UserCacheTTL bounds how stale a cached role lookup may be.
const UserCacheTTL = 5 * time.Minute

const userCachePrefix = "cache:user:"

// CachedUser represents a cached user entity.
type CachedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// GetUser retrieves a user from cache. Returns nil on a cache miss.
func (s *CacheStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	data, err := s.client.Get(ctx, userCachePrefix+userID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedUser
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &domain.User{
		ID:    cached.ID,
		Name:  cached.Name,
		Email: cached.Email,
		Phone: cached.Phone,
		Role:  domain.UserRole(cached.Role),
	}, nil
}

// SetUser stores a user in cache.
func (s *CacheStore) SetUser(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(CachedUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Phone: user.Phone,
		Role:  string(user.Role),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, userCachePrefix+user.ID, data, UserCacheTTL).Err()
}

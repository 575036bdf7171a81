package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"dedicated/internal/domain"
	"dedicated/internal/redis"
	"dedicated/internal/repository"
)

// UserDirectory resolves users and their roles.
// Implementations return repository.ErrNotFound for unknown IDs.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// PromotionEvaluator prices a promotion code against an amount and returns
// the discount to subtract.
type PromotionEvaluator interface {
	Discount(ctx context.Context, code, userID string, amount float64) (float64, error)
}

// CachedUserDirectory serves user lookups from Redis and falls back to the
// user repository on a miss.
type CachedUserDirectory struct {
	users repository.UserRepository
	cache redis.UserCacheInterface
	log   logrus.FieldLogger
}

// NewCachedUserDirectory creates a new CachedUserDirectory. cache may be nil.
func NewCachedUserDirectory(users repository.UserRepository, cache redis.UserCacheInterface, log logrus.FieldLogger) *CachedUserDirectory {
	return &CachedUserDirectory{
		users: users,
		cache: cache,
		log:   log,
	}
}

// GetUser retrieves a user by ID.
func (d *CachedUserDirectory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if d.cache != nil {
		cached, err := d.cache.GetUser(ctx, id)
		if err != nil {
			d.log.WithError(err).WithField("user_id", id).Warn("user cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.SetUser(ctx, user); err != nil {
			d.log.WithError(err).WithField("user_id", id).Warn("user cache write failed")
		}
	}
	return user, nil
}

var _ UserDirectory = (*CachedUserDirectory)(nil)

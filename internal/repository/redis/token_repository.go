package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// TokenRepository mirrors issued admission tokens so they can be consumed
// exactly once. The TTL is a cleanup aid; callers still check ExpiresAt.
type TokenRepository interface {
	Save(ctx context.Context, t *models.AdmissionToken, ttl time.Duration) error
	Get(ctx context.Context, resourceID, ownerID string) (*models.AdmissionToken, error)
	Delete(ctx context.Context, resourceID, ownerID string) error
}

type redisTokenRepository struct {
	cli redis.Cmdable
	l   logger.Logger
}

func NewRedisTokenRepository(cli redis.Cmdable, l logger.Logger) TokenRepository {
	return &redisTokenRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisTokenRepository) Save(ctx context.Context, t *models.AdmissionToken, ttl time.Duration) error {
	key := r.tokenKey(t.ResourceID, t.OwnerID)

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := r.cli.Set(ctx, key, data, ttl).Err(); err != nil {
		r.l.Errorf(ctx, "redisTokenRepository.Save: %v", err)
		return err
	}

	return nil
}

func (r *redisTokenRepository) Get(ctx context.Context, resourceID, ownerID string) (*models.AdmissionToken, error) {
	key := r.tokenKey(resourceID, ownerID)

	data, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}

		r.l.Errorf(ctx, "redisTokenRepository.Get: %v", err)
		return nil, err
	}

	var t models.AdmissionToken
	if err := json.Unmarshal(data, &t); err != nil {
		r.l.Errorf(ctx, "redisTokenRepository.Get: %v", err)
		return nil, err
	}

	return &t, nil
}

func (r *redisTokenRepository) Delete(ctx context.Context, resourceID, ownerID string) error {
	key := r.tokenKey(resourceID, ownerID)

	if err := r.cli.Del(ctx, key).Err(); err != nil {
		r.l.Errorf(ctx, "redisTokenRepository.Delete: %v", err)
		return err
	}

	return nil
}

func (r *redisTokenRepository) tokenKey(resourceID, ownerID string) string {
	return fmt.Sprintf("admitq:token:%s:%s", resourceID, ownerID)
}

package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// IndexRepository is the rank-ordered view of who is waiting at a resource.
// It is a derived projection keyed by ticket number, never the system of
// record for an entry's existence; the entry repository is.
type IndexRepository interface {
	Insert(ctx context.Context, resourceID, entryID string, ticket int64) error
	Rank(ctx context.Context, resourceID, entryID string) (int64, bool, error)
	Cardinality(ctx context.Context, resourceID string) (int64, error)
	Remove(ctx context.Context, resourceID, entryID string) error
	Members(ctx context.Context, resourceID string, start, stop int64) ([]string, error)
	Purge(ctx context.Context, resourceID string) error
}

type redisIndexRepository struct {
	cli redis.Cmdable
	l   logger.Logger
}

func NewRedisIndexRepository(cli redis.Cmdable, l logger.Logger) IndexRepository {
	return &redisIndexRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisIndexRepository) Insert(ctx context.Context, resourceID, entryID string, ticket int64) error {
	qKey := r.queueKey(resourceID)

	if err := r.cli.ZAdd(ctx, qKey, redis.Z{
		Score:  float64(ticket),
		Member: entryID,
	}).Err(); err != nil {
		r.l.Errorf(ctx, "redisIndexRepository.Insert: %v", err)
		return err
	}

	return nil
}

// Rank returns the zero-based position of the entry in ticket order. The
// second result is false when the entry is not in the index.
func (r *redisIndexRepository) Rank(ctx context.Context, resourceID, entryID string) (int64, bool, error) {
	qKey := r.queueKey(resourceID)

	rank, err := r.cli.ZRank(ctx, qKey, entryID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}

		r.l.Errorf(ctx, "redisIndexRepository.Rank: %v", err)
		return 0, false, err
	}

	return rank, true, nil
}

func (r *redisIndexRepository) Cardinality(ctx context.Context, resourceID string) (int64, error) {
	qKey := r.queueKey(resourceID)

	count, err := r.cli.ZCard(ctx, qKey).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisIndexRepository.Cardinality: %v", err)
		return 0, err
	}

	return count, nil
}

func (r *redisIndexRepository) Remove(ctx context.Context, resourceID, entryID string) error {
	qKey := r.queueKey(resourceID)

	if err := r.cli.ZRem(ctx, qKey, entryID).Err(); err != nil {
		r.l.Errorf(ctx, "redisIndexRepository.Remove: %v", err)
		return err
	}

	return nil
}

func (r *redisIndexRepository) Members(ctx context.Context, resourceID string, start, stop int64) ([]string, error) {
	qKey := r.queueKey(resourceID)

	members, err := r.cli.ZRange(ctx, qKey, start, stop).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisIndexRepository.Members: %v", err)
		return nil, err
	}

	return members, nil
}

func (r *redisIndexRepository) Purge(ctx context.Context, resourceID string) error {
	qKey := r.queueKey(resourceID)

	if err := r.cli.Del(ctx, qKey).Err(); err != nil {
		r.l.Errorf(ctx, "redisIndexRepository.Purge: %v", err)
		return err
	}

	return nil
}

func (r *redisIndexRepository) queueKey(resourceID string) string {
	return fmt.Sprintf("admitq:%s:queue", resourceID)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

const entryTTL = 24 * time.Hour

type EntryRepository interface {
	Create(ctx context.Context, e *models.QueueEntry) error
	Get(ctx context.Context, entryID string) (*models.QueueEntry, error)
	// Update commits the entry only if the stored version still matches
	// e.Version; on success e.Version is incremented. A mismatch returns
	// ErrVersionConflict.
	Update(ctx context.Context, e *models.QueueEntry) error
	Delete(ctx context.Context, entryID string) error
}

// casScript compares the stored version against the expected one before
// overwriting, keeping the TTL of the existing key.
var casScript = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	if not cur then
		return -1
	end
	local obj = cjson.decode(cur)
	if tonumber(obj['version']) ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
	return 1
`)

type redisEntryRepository struct {
	cli redis.Cmdable
	l   logger.Logger
}

func NewRedisEntryRepository(cli redis.Cmdable, l logger.Logger) EntryRepository {
	return &redisEntryRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisEntryRepository) Create(ctx context.Context, e *models.QueueEntry) error {
	key := r.entryKey(e.ID)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := r.cli.Set(ctx, key, data, entryTTL).Err(); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Create: %v", err)
		return err
	}

	return nil
}

func (r *redisEntryRepository) Get(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	key := r.entryKey(entryID)

	data, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domainErr.ErrEntryNotFound
		}

		r.l.Errorf(ctx, "redisEntryRepository.Get: %v", err)
		return nil, err
	}

	var e models.QueueEntry
	if err := json.Unmarshal(data, &e); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Get: %v", err)
		return nil, err
	}

	return &e, nil
}

func (r *redisEntryRepository) Update(ctx context.Context, e *models.QueueEntry) error {
	key := r.entryKey(e.ID)

	expected := e.Version
	next := *e
	next.Version = expected + 1

	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	res, err := casScript.Run(ctx, r.cli, []string{key}, expected, string(data)).Int64()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Update: %v", err)
		return err
	}

	switch res {
	case -1:
		return domainErr.ErrEntryNotFound
	case 0:
		return domainErr.ErrVersionConflict
	}

	e.Version = next.Version
	return nil
}

func (r *redisEntryRepository) Delete(ctx context.Context, entryID string) error {
	key := r.entryKey(entryID)

	if err := r.cli.Del(ctx, key).Err(); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Delete: %v", err)
		return err
	}

	return nil
}

func (r *redisEntryRepository) entryKey(entryID string) string {
	return fmt.Sprintf("admitq:entry:%s", entryID)
}

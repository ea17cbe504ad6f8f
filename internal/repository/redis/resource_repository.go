package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// ResourceRepository stores per-resource admission state as a Redis hash so
// the ticket counter can be advanced with a single HINCRBY. It also keeps a
// registry set of known resources for the daily reset sweep.
type ResourceRepository interface {
	Create(ctx context.Context, state *models.ResourceQueueState) error
	Get(ctx context.Context, resourceID string) (*models.ResourceQueueState, error)
	// NextTicket atomically advances and returns the resource's ticket
	// counter. Callers serialize through the admission lock; atomicity here
	// guarantees no number is ever issued twice even if they do not.
	NextTicket(ctx context.Context, resourceID string) (int64, error)
	// ReleaseTicket walks the counter back after a failed join. Only valid
	// while the caller still holds the admission lock that issued the
	// number, so it was never exposed and cannot be reused.
	ReleaseTicket(ctx context.Context, resourceID string) error
	SetAdmissionOpen(ctx context.Context, resourceID string, open bool) error
	SetLastCalledTicket(ctx context.Context, resourceID string, ticket int64) error
	// ResetCounters zeroes both ticket counters and closes admission.
	ResetCounters(ctx context.Context, resourceID string) error
	ListResourceIDs(ctx context.Context) ([]string, error)
}

const (
	fieldIsOpen       = "is_open"
	fieldLastAssigned = "last_assigned_ticket"
	fieldLastCalled   = "last_called_ticket"
	fieldCapacityUnit = "capacity_unit"
	fieldTurnoverMS   = "turnover_ms"
	fieldMinParty     = "min_party_size"
	fieldMaxParty     = "max_party_size"
	fieldUpdatedAt    = "updated_at"

	registryKey = "admitq:resources"
)

type redisResourceRepository struct {
	cli redis.Cmdable
	l   logger.Logger
}

func NewRedisResourceRepository(cli redis.Cmdable, l logger.Logger) ResourceRepository {
	return &redisResourceRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisResourceRepository) Create(ctx context.Context, state *models.ResourceQueueState) error {
	key := r.resourceKey(state.ResourceID)

	pipe := r.cli.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldIsOpen:       boolToInt(state.IsAdmissionOpen),
		fieldLastAssigned: state.LastAssignedTicket,
		fieldLastCalled:   state.LastCalledTicket,
		fieldCapacityUnit: state.CapacityUnit,
		fieldTurnoverMS:   state.TurnoverDuration.Milliseconds(),
		fieldMinParty:     state.MinPartySize,
		fieldMaxParty:     state.MaxPartySize,
		fieldUpdatedAt:    time.Now().Unix(),
	})
	pipe.SAdd(ctx, registryKey, state.ResourceID)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.Create: %v", err)
		return err
	}

	return nil
}

func (r *redisResourceRepository) Get(ctx context.Context, resourceID string) (*models.ResourceQueueState, error) {
	key := r.resourceKey(resourceID)

	fields, err := r.cli.HGetAll(ctx, key).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.Get: %v", err)
		return nil, err
	}

	if len(fields) == 0 {
		return nil, domainErr.ErrResourceNotFound
	}

	state := &models.ResourceQueueState{
		ResourceID:         resourceID,
		IsAdmissionOpen:    fields[fieldIsOpen] == "1",
		LastAssignedTicket: parseInt(fields[fieldLastAssigned]),
		LastCalledTicket:   parseInt(fields[fieldLastCalled]),
		CapacityUnit:       int(parseInt(fields[fieldCapacityUnit])),
		TurnoverDuration:   time.Duration(parseInt(fields[fieldTurnoverMS])) * time.Millisecond,
		MinPartySize:       int(parseInt(fields[fieldMinParty])),
		MaxPartySize:       int(parseInt(fields[fieldMaxParty])),
		UpdatedAt:          time.Unix(parseInt(fields[fieldUpdatedAt]), 0),
	}

	return state, nil
}

func (r *redisResourceRepository) NextTicket(ctx context.Context, resourceID string) (int64, error) {
	key := r.resourceKey(resourceID)

	ticket, err := r.cli.HIncrBy(ctx, key, fieldLastAssigned, 1).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.NextTicket: %v", err)
		return 0, err
	}

	return ticket, nil
}

func (r *redisResourceRepository) ReleaseTicket(ctx context.Context, resourceID string) error {
	key := r.resourceKey(resourceID)

	if err := r.cli.HIncrBy(ctx, key, fieldLastAssigned, -1).Err(); err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.ReleaseTicket: %v", err)
		return err
	}

	return nil
}

// SetAdmissionOpen rejects a toggle to the current value so caller bugs
// surface instead of being silently absorbed.
func (r *redisResourceRepository) SetAdmissionOpen(ctx context.Context, resourceID string, open bool) error {
	key := r.resourceKey(resourceID)

	cur, err := r.cli.HGet(ctx, key, fieldIsOpen).Result()
	if err != nil {
		if err == redis.Nil {
			return domainErr.ErrResourceNotFound
		}

		r.l.Errorf(ctx, "redisResourceRepository.SetAdmissionOpen: %v", err)
		return err
	}

	if (cur == "1") == open {
		if open {
			return domainErr.ErrAdmissionAlreadyOpen
		}
		return domainErr.ErrAdmissionAlreadyClosed
	}

	pipe := r.cli.Pipeline()
	pipe.HSet(ctx, key, fieldIsOpen, boolToInt(open))
	pipe.HSet(ctx, key, fieldUpdatedAt, time.Now().Unix())

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.SetAdmissionOpen: %v", err)
		return err
	}

	return nil
}

func (r *redisResourceRepository) SetLastCalledTicket(ctx context.Context, resourceID string, ticket int64) error {
	key := r.resourceKey(resourceID)

	if err := r.cli.HSet(ctx, key, fieldLastCalled, ticket).Err(); err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.SetLastCalledTicket: %v", err)
		return err
	}

	return nil
}

func (r *redisResourceRepository) ResetCounters(ctx context.Context, resourceID string) error {
	key := r.resourceKey(resourceID)

	if err := r.cli.HSet(ctx, key, map[string]any{
		fieldIsOpen:       0,
		fieldLastAssigned: 0,
		fieldLastCalled:   0,
		fieldUpdatedAt:    time.Now().Unix(),
	}).Err(); err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.ResetCounters: %v", err)
		return err
	}

	return nil
}

func (r *redisResourceRepository) ListResourceIDs(ctx context.Context) ([]string, error) {
	ids, err := r.cli.SMembers(ctx, registryKey).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisResourceRepository.ListResourceIDs: %v", err)
		return nil, err
	}

	return ids, nil
}

func (r *redisResourceRepository) resourceKey(resourceID string) string {
	return fmt.Sprintf("admitq:resource:%s", resourceID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

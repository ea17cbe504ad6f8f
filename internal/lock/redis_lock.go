// Package lock provides the lease-based mutual exclusion used to serialize
// capacity-sensitive admission decisions across processes.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

type CriticalSection interface {
	// WithLock runs action while holding the named lock. If the lock cannot
	// be acquired within waitTimeout it fails with ErrLockBusy. The lease
	// self-expires after leaseTimeout, so a crashed holder cannot deadlock
	// the key; callers must size leaseTimeout above action's worst case.
	WithLock(ctx context.Context, key string, waitTimeout, leaseTimeout time.Duration, action func(ctx context.Context) error) error
}

const acquireRetryInterval = 25 * time.Millisecond

// releaseScript deletes the lock only when still held by this owner, so an
// expired lease taken over by another process is never released from here.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

type redisCriticalSection struct {
	cli redis.Cmdable
	l   logger.Logger
}

func NewRedisCriticalSection(cli redis.Cmdable, l logger.Logger) CriticalSection {
	return &redisCriticalSection{
		cli: cli,
		l:   l,
	}
}

func (s *redisCriticalSection) WithLock(ctx context.Context, key string, waitTimeout, leaseTimeout time.Duration, action func(ctx context.Context) error) error {
	lKey := s.lockKey(key)
	owner := uuid.New().String()
	deadline := time.Now().Add(waitTimeout)

	for {
		ok, err := s.cli.SetNX(ctx, lKey, owner, leaseTimeout).Result()
		if err != nil {
			s.l.Errorf(ctx, "redisCriticalSection.WithLock: %v", err)
			return err
		}
		if ok {
			break
		}

		if time.Now().Add(acquireRetryInterval).After(deadline) {
			return domainErr.ErrLockBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}

	defer func() {
		// Release must not depend on the caller's context still being live.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, s.cli, []string{lKey}, owner).Err(); err != nil && err != redis.Nil {
			s.l.Warnf(releaseCtx, "redisCriticalSection.WithLock release: %v", err)
		}
	}()

	return action(ctx)
}

func (s *redisCriticalSection) lockKey(key string) string {
	return fmt.Sprintf("admitq:lock:%s", key)
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thanhvo2104/admitq/config"
	"github.com/thanhvo2104/admitq/internal/lock"
	repo "github.com/thanhvo2104/admitq/internal/repository/redis"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// ResetService is the once-per-operational-day maintenance sweep: it zeroes
// every resource's ticket counters, closes admission, and purges the ordered
// index. Each resource is reset under its admission lock so the sweep cannot
// interleave with a live join or call-forward.
type ResetService interface {
	Start(ctx context.Context)
	Stop()
	RunOnce(ctx context.Context) error
}

type resetService struct {
	resourceRepo repo.ResourceRepository
	indexRepo    repo.IndexRepository
	cs           lock.CriticalSection
	cfg          config.EngineConfig
	l            logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewResetService(
	resourceRepo repo.ResourceRepository,
	indexRepo repo.IndexRepository,
	cs lock.CriticalSection,
	cfg config.EngineConfig,
	l logger.Logger,
) ResetService {
	return &resetService{
		resourceRepo: resourceRepo,
		indexRepo:    indexRepo,
		cs:           cs,
		cfg:          cfg,
		l:            l,
		stopCh:       make(chan struct{}),
	}
}

func (s *resetService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *resetService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *resetService) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.nextRunAt(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.RunOnce(ctx); err != nil {
				s.l.Errorf(ctx, "resetService.loop: %v", err)
			}
		}
	}
}

// nextRunAt returns the next occurrence of the configured reset hour.
func (s *resetService) nextRunAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.ResetHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *resetService) RunOnce(ctx context.Context) error {
	ids, err := s.resourceRepo.ListResourceIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	s.l.Infof(ctx, "daily reset starting: %d resources", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResetParallelism)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			return s.resetResource(gctx, id)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("daily reset incomplete: %w", err)
	}

	s.l.Infof(ctx, "daily reset finished: %d resources", len(ids))

	return nil
}

func (s *resetService) resetResource(ctx context.Context, resourceID string) error {
	key := fmt.Sprintf("resource:%s", resourceID)

	return s.cs.WithLock(ctx, key, s.cfg.LockWaitTimeout, s.cfg.LockLeaseTimeout, func(ctx context.Context) error {
		if err := s.resourceRepo.ResetCounters(ctx, resourceID); err != nil {
			return fmt.Errorf("reset counters for %s: %w", resourceID, err)
		}
		if err := s.indexRepo.Purge(ctx, resourceID); err != nil {
			return fmt.Errorf("purge index for %s: %w", resourceID, err)
		}
		return nil
	})
}

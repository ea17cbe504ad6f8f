package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thanhvo2104/admitq/config"
	"github.com/thanhvo2104/admitq/internal/delivery/kafka"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/lock"
	"github.com/thanhvo2104/admitq/internal/metrics"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/internal/notify"
	repo "github.com/thanhvo2104/admitq/internal/repository/redis"
	"github.com/thanhvo2104/admitq/internal/scheduler"
	"github.com/thanhvo2104/admitq/internal/statemachine"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// ExpiryScheduler is the slice of the timer scheduler the engine needs;
// tests substitute a fake.
type ExpiryScheduler interface {
	Arm(entryID string, delay time.Duration) scheduler.Handle
	Disarm(h scheduler.Handle)
}

type AdmissionEngine interface {
	Join(ctx context.Context, in JoinInput) (*JoinOutput, error)
	RankOf(ctx context.Context, entryID string) (*RankOutput, error)
	CallNext(ctx context.Context, resourceID, entryID string) error
	Confirm(ctx context.Context, entryID string, identity models.Identity) error
	ResolveEntered(ctx context.Context, resourceID, entryID string) error
	Cancel(ctx context.Context, entryID string, actor Actor, identity models.Identity) error

	// HandleExpiry is the no-show timer callback. It re-validates current
	// state before transitioning, so a fired-but-superseded timer is a
	// silent no-op.
	HandleExpiry(ctx context.Context, entryID string)

	OpenChannel(ctx context.Context, entryID string, identity models.Identity) (<-chan models.NotificationEvent, error)
	WatchResource(resourceID string) (<-chan models.NotificationEvent, func())
	ListWaiting(ctx context.Context, resourceID string) ([]WaitingEntry, error)

	RegisterResource(ctx context.Context, state *models.ResourceQueueState) error
	SetAdmissionOpen(ctx context.Context, resourceID string, open bool) error
}

type admissionEngine struct {
	cfg          config.EngineConfig
	resourceRepo repo.ResourceRepository
	entryRepo    repo.EntryRepository
	indexRepo    repo.IndexRepository
	cs           lock.CriticalSection
	sched        ExpiryScheduler
	hub          notify.Hub
	prod         kafka.Producer
	l            logger.Logger

	mu      sync.Mutex
	handles map[string]scheduler.Handle
}

func NewAdmissionEngine(
	cfg config.EngineConfig,
	resourceRepo repo.ResourceRepository,
	entryRepo repo.EntryRepository,
	indexRepo repo.IndexRepository,
	cs lock.CriticalSection,
	sched ExpiryScheduler,
	hub notify.Hub,
	prod kafka.Producer,
	l logger.Logger,
) AdmissionEngine {
	return &admissionEngine{
		cfg:          cfg,
		resourceRepo: resourceRepo,
		entryRepo:    entryRepo,
		indexRepo:    indexRepo,
		cs:           cs,
		sched:        sched,
		hub:          hub,
		prod:         prod,
		l:            l,
		handles:      make(map[string]scheduler.Handle),
	}
}

func (s *admissionEngine) Join(ctx context.Context, in JoinInput) (*JoinOutput, error) {
	if err := in.Identity.Validate(); err != nil {
		return nil, err
	}

	// Fail fast before any side effect; the authoritative checks repeat
	// under the lock.
	state, err := s.resourceRepo.Get(ctx, in.ResourceID)
	if err != nil {
		return nil, err
	}
	if !state.IsAdmissionOpen {
		return nil, domainErr.ErrAdmissionClosed
	}
	if !state.ValidatePartySize(in.PartySize) {
		return nil, domainErr.ErrPartySizeOutOfRange
	}

	var out *JoinOutput
	lockStart := time.Now()
	err = s.cs.WithLock(ctx, s.resourceLockKey(in.ResourceID), s.cfg.LockWaitTimeout, s.cfg.LockLeaseTimeout, func(ctx context.Context) error {
		metrics.ObserveLockWait(time.Since(lockStart))

		state, err := s.resourceRepo.Get(ctx, in.ResourceID)
		if err != nil {
			return err
		}
		if !state.IsAdmissionOpen {
			return domainErr.ErrAdmissionClosed
		}
		if !state.ValidatePartySize(in.PartySize) {
			return domainErr.ErrPartySizeOutOfRange
		}

		ticket, err := s.resourceRepo.NextTicket(ctx, in.ResourceID)
		if err != nil {
			return fmt.Errorf("failed to issue ticket: %w", err)
		}

		now := time.Now()
		e := &models.QueueEntry{
			ID:           uuid.New().String(),
			ResourceID:   in.ResourceID,
			TicketNumber: ticket,
			PartySize:    in.PartySize,
			Identity:     in.Identity,
			Status:       models.EntryStatusWaiting,
			QueuedAt:     now,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.entryRepo.Create(ctx, e); err != nil {
			s.releaseTicket(ctx, in.ResourceID)
			return fmt.Errorf("failed to create entry: %w", err)
		}

		if err := s.indexRepo.Insert(ctx, in.ResourceID, e.ID, ticket); err != nil {
			// No partial state: the entry must not exist without its
			// index slot, and a rejected join must not consume a ticket.
			if delErr := s.entryRepo.Delete(ctx, e.ID); delErr != nil {
				s.l.Errorf(ctx, "admissionEngine.Join rollback: %v", delErr)
			}
			s.releaseTicket(ctx, in.ResourceID)
			return fmt.Errorf("failed to insert into index: %w", err)
		}

		rank, _, err := s.indexRepo.Rank(ctx, in.ResourceID, e.ID)
		if err != nil {
			rank = 0
		}

		out = &JoinOutput{
			EntryID:       e.ID,
			TicketNumber:  ticket,
			Rank:          rank,
			EstimatedWait: state.EstimateWait(rank),
		}
		return nil
	})
	if err != nil {
		metrics.TrackOperation("join", in.ResourceID, "error")
		return nil, err
	}

	metrics.TrackOperation("join", in.ResourceID, "success")
	s.updateQueueGauge(ctx, in.ResourceID)
	s.hub.Broadcast(in.ResourceID, models.NotificationEvent{
		Kind:       models.EventQueueChanged,
		ResourceID: in.ResourceID,
		Timestamp:  time.Now(),
	})

	if err := s.prod.PublishEntryJoined(ctx, kafka.EntryJoinedEvent{
		EntryID:      out.EntryID,
		ResourceID:   in.ResourceID,
		TicketNumber: out.TicketNumber,
		PartySize:    in.PartySize,
		Position:     out.Rank,
		JoinedAt:     time.Now(),
	}); err != nil {
		s.l.Errorf(ctx, "admissionEngine.Join publish: %v", err)
	}

	s.l.Infof(ctx, "entry joined: resource=%s entry=%s ticket=%d rank=%d",
		in.ResourceID, out.EntryID, out.TicketNumber, out.Rank)

	return out, nil
}

func (s *admissionEngine) RankOf(ctx context.Context, entryID string) (*RankOutput, error) {
	e, err := s.entryRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	// Rank is only meaningful while waiting; anything else reports zero
	// rather than a stale number.
	if e.Status != models.EntryStatusWaiting {
		return &RankOutput{Status: e.Status}, nil
	}

	rank, present, err := s.indexRepo.Rank(ctx, e.ResourceID, entryID)
	if err != nil {
		return nil, err
	}
	if !present {
		return &RankOutput{Status: e.Status}, nil
	}

	state, err := s.resourceRepo.Get(ctx, e.ResourceID)
	if err != nil {
		return nil, err
	}

	return &RankOutput{
		Rank:          rank,
		EstimatedWait: state.EstimateWait(rank),
		Status:        e.Status,
	}, nil
}

func (s *admissionEngine) CallNext(ctx context.Context, resourceID, entryID string) error {
	var called *models.QueueEntry
	err := s.cs.WithLock(ctx, s.resourceLockKey(resourceID), s.cfg.LockWaitTimeout, s.cfg.LockLeaseTimeout, func(ctx context.Context) error {
		e, err := s.getResourceEntry(ctx, resourceID, entryID)
		if err != nil {
			return err
		}

		if err := statemachine.Apply(e, models.EntryStatusCalled, time.Now()); err != nil {
			return err
		}
		if err := s.entryRepo.Update(ctx, e); err != nil {
			return err
		}

		if err := s.resourceRepo.SetLastCalledTicket(ctx, resourceID, e.TicketNumber); err != nil {
			return err
		}

		called = e
		return nil
	})
	if err != nil {
		metrics.TrackOperation("call_next", resourceID, "error")
		return err
	}

	h := s.sched.Arm(entryID, s.cfg.NoShowTimeout)
	s.storeHandle(entryID, h)

	metrics.TrackOperation("call_next", resourceID, "success")
	s.hub.Push(entryID, models.NotificationEvent{
		Kind:         models.EventCalled,
		EntryID:      entryID,
		ResourceID:   resourceID,
		TicketNumber: called.TicketNumber,
		Status:       models.EntryStatusCalled,
		Timestamp:    time.Now(),
	})
	s.hub.Broadcast(resourceID, models.NotificationEvent{
		Kind:       models.EventQueueChanged,
		ResourceID: resourceID,
		Timestamp:  time.Now(),
	})

	if err := s.prod.PublishEntryCalled(ctx, kafka.EntryCalledEvent{
		EntryID:      entryID,
		ResourceID:   resourceID,
		TicketNumber: called.TicketNumber,
		CalledAt:     *called.CalledAt,
	}); err != nil {
		s.l.Errorf(ctx, "admissionEngine.CallNext publish: %v", err)
	}

	s.l.Infof(ctx, "entry called: resource=%s entry=%s ticket=%d", resourceID, entryID, called.TicketNumber)

	return nil
}

func (s *admissionEngine) Confirm(ctx context.Context, entryID string, identity models.Identity) error {
	e, err := s.entryRepo.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if !e.Identity.Matches(identity) {
		return domainErr.ErrPermissionDenied
	}

	if err := statemachine.Apply(e, models.EntryStatusConfirmed, time.Now()); err != nil {
		return err
	}
	if err := s.entryRepo.Update(ctx, e); err != nil {
		return err
	}

	// Intent has been signaled; the no-show timer no longer applies.
	s.disarmEntry(entryID)

	metrics.TrackOperation("confirm", e.ResourceID, "success")
	s.l.Infof(ctx, "entry confirmed: resource=%s entry=%s", e.ResourceID, entryID)

	return nil
}

func (s *admissionEngine) ResolveEntered(ctx context.Context, resourceID, entryID string) error {
	e, err := s.getResourceEntry(ctx, resourceID, entryID)
	if err != nil {
		return err
	}

	if err := statemachine.Apply(e, models.EntryStatusEntered, time.Now()); err != nil {
		return err
	}
	if err := s.entryRepo.Update(ctx, e); err != nil {
		return err
	}

	if err := s.indexRepo.Remove(ctx, resourceID, entryID); err != nil {
		s.l.Errorf(ctx, "admissionEngine.ResolveEntered remove index: %v", err)
	}
	s.disarmEntry(entryID)

	metrics.TrackOperation("enter", resourceID, "success")
	s.updateQueueGauge(ctx, resourceID)

	s.hub.Push(entryID, models.NotificationEvent{
		Kind:         models.EventEntered,
		EntryID:      entryID,
		ResourceID:   resourceID,
		TicketNumber: e.TicketNumber,
		Status:       models.EntryStatusEntered,
		Timestamp:    time.Now(),
	})
	s.hub.Close(entryID)
	s.hub.Broadcast(resourceID, models.NotificationEvent{
		Kind:       models.EventQueueChanged,
		ResourceID: resourceID,
		Timestamp:  time.Now(),
	})
	s.fanOutPositions(ctx, resourceID)

	if err := s.prod.PublishEntryEntered(ctx, kafka.EntryEnteredEvent{
		EntryID:      entryID,
		ResourceID:   resourceID,
		TicketNumber: e.TicketNumber,
		EnteredAt:    *e.ResolvedAt,
	}); err != nil {
		s.l.Errorf(ctx, "admissionEngine.ResolveEntered publish: %v", err)
	}

	s.l.Infof(ctx, "entry entered: resource=%s entry=%s ticket=%d", resourceID, entryID, e.TicketNumber)

	return nil
}

func (s *admissionEngine) Cancel(ctx context.Context, entryID string, actor Actor, identity models.Identity) error {
	e, err := s.entryRepo.Get(ctx, entryID)
	if err != nil {
		return err
	}

	to := models.EntryStatusOwnerCanceled
	if actor == ActorParticipant {
		if !e.Identity.Matches(identity) {
			return domainErr.ErrPermissionDenied
		}
		to = models.EntryStatusUserCanceled
	}

	if err := statemachine.Apply(e, to, time.Now()); err != nil {
		return err
	}
	if err := s.entryRepo.Update(ctx, e); err != nil {
		return err
	}

	if err := s.indexRepo.Remove(ctx, e.ResourceID, entryID); err != nil {
		s.l.Errorf(ctx, "admissionEngine.Cancel remove index: %v", err)
	}
	s.disarmEntry(entryID)

	metrics.TrackOperation("cancel", e.ResourceID, "success")
	s.updateQueueGauge(ctx, e.ResourceID)

	s.hub.Push(entryID, models.NotificationEvent{
		Kind:         models.EventCancelled,
		EntryID:      entryID,
		ResourceID:   e.ResourceID,
		TicketNumber: e.TicketNumber,
		Status:       to,
		Timestamp:    time.Now(),
	})
	s.hub.Close(entryID)
	s.hub.Broadcast(e.ResourceID, models.NotificationEvent{
		Kind:       models.EventQueueChanged,
		ResourceID: e.ResourceID,
		Timestamp:  time.Now(),
	})
	s.fanOutPositions(ctx, e.ResourceID)

	if err := s.prod.PublishEntryCancelled(ctx, kafka.EntryCancelledEvent{
		EntryID:      entryID,
		ResourceID:   e.ResourceID,
		TicketNumber: e.TicketNumber,
		Actor:        string(actor),
		CancelledAt:  *e.ResolvedAt,
	}); err != nil {
		s.l.Errorf(ctx, "admissionEngine.Cancel publish: %v", err)
	}

	s.l.Infof(ctx, "entry cancelled: resource=%s entry=%s actor=%s", e.ResourceID, entryID, actor)

	return nil
}

func (s *admissionEngine) HandleExpiry(ctx context.Context, entryID string) {
	e, err := s.entryRepo.Get(ctx, entryID)
	if err != nil {
		if err != domainErr.ErrEntryNotFound {
			s.l.Errorf(ctx, "admissionEngine.HandleExpiry: %v", err)
		}
		return
	}

	// The entry may have resolved between arm and fire; a stale callback
	// must change nothing.
	if e.Status != models.EntryStatusCalled && e.Status != models.EntryStatusConfirmed {
		return
	}

	if err := statemachine.Apply(e, models.EntryStatusNoShow, time.Now()); err != nil {
		return
	}
	if err := s.entryRepo.Update(ctx, e); err != nil {
		if err == domainErr.ErrVersionConflict {
			// A concurrent owner action won; the timer loses quietly.
			return
		}
		s.l.Errorf(ctx, "admissionEngine.HandleExpiry update: %v", err)
		return
	}

	if err := s.indexRepo.Remove(ctx, e.ResourceID, entryID); err != nil {
		s.l.Errorf(ctx, "admissionEngine.HandleExpiry remove index: %v", err)
	}
	s.dropHandle(entryID)

	metrics.TrackNoShow(e.ResourceID)
	s.updateQueueGauge(ctx, e.ResourceID)

	s.hub.Push(entryID, models.NotificationEvent{
		Kind:         models.EventNoShow,
		EntryID:      entryID,
		ResourceID:   e.ResourceID,
		TicketNumber: e.TicketNumber,
		Status:       models.EntryStatusNoShow,
		Timestamp:    time.Now(),
	})
	s.hub.Close(entryID)
	s.hub.Broadcast(e.ResourceID, models.NotificationEvent{
		Kind:       models.EventQueueChanged,
		ResourceID: e.ResourceID,
		Timestamp:  time.Now(),
	})
	s.fanOutPositions(ctx, e.ResourceID)

	if err := s.prod.PublishEntryNoShow(ctx, kafka.EntryNoShowEvent{
		EntryID:      entryID,
		ResourceID:   e.ResourceID,
		TicketNumber: e.TicketNumber,
		ExpiredAt:    *e.ResolvedAt,
	}); err != nil {
		s.l.Errorf(ctx, "admissionEngine.HandleExpiry publish: %v", err)
	}

	s.l.Infof(ctx, "entry expired to no-show: resource=%s entry=%s", e.ResourceID, entryID)
}

func (s *admissionEngine) OpenChannel(ctx context.Context, entryID string, identity models.Identity) (<-chan models.NotificationEvent, error) {
	e, err := s.entryRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !e.Identity.Matches(identity) {
		return nil, domainErr.ErrPermissionDenied
	}

	ch := s.hub.Open(entryID)

	// Seed the channel so the participant does not wait for the next queue
	// change to learn their position.
	if out, err := s.RankOf(ctx, entryID); err == nil {
		s.hub.Push(entryID, models.NotificationEvent{
			Kind:          models.EventPositionUpdate,
			EntryID:       entryID,
			ResourceID:    e.ResourceID,
			TicketNumber:  e.TicketNumber,
			Position:      out.Rank,
			EstimatedWait: out.EstimatedWait,
			Status:        out.Status,
			Timestamp:     time.Now(),
		})
	}

	return ch, nil
}

func (s *admissionEngine) WatchResource(resourceID string) (<-chan models.NotificationEvent, func()) {
	return s.hub.Watch(resourceID)
}

func (s *admissionEngine) ListWaiting(ctx context.Context, resourceID string) ([]WaitingEntry, error) {
	members, err := s.indexRepo.Members(ctx, resourceID, 0, -1)
	if err != nil {
		return nil, err
	}

	list := make([]WaitingEntry, 0, len(members))
	for i, entryID := range members {
		e, err := s.entryRepo.Get(ctx, entryID)
		if err != nil {
			// The index is a derived projection; a dangling member is
			// skipped, not fatal.
			s.l.Warnf(ctx, "admissionEngine.ListWaiting: dangling index member %s: %v", entryID, err)
			continue
		}

		list = append(list, WaitingEntry{
			Rank:         int64(i),
			EntryID:      e.ID,
			TicketNumber: e.TicketNumber,
			PartySize:    e.PartySize,
			Status:       e.Status,
			QueuedAt:     e.QueuedAt,
			CalledAt:     e.CalledAt,
		})
	}

	return list, nil
}

func (s *admissionEngine) RegisterResource(ctx context.Context, state *models.ResourceQueueState) error {
	if state.CapacityUnit <= 0 {
		return fmt.Errorf("capacity unit must be positive")
	}
	if state.MinPartySize <= 0 || state.MaxPartySize < state.MinPartySize {
		return fmt.Errorf("invalid party size policy: min=%d max=%d", state.MinPartySize, state.MaxPartySize)
	}

	return s.resourceRepo.Create(ctx, state)
}

func (s *admissionEngine) SetAdmissionOpen(ctx context.Context, resourceID string, open bool) error {
	return s.cs.WithLock(ctx, s.resourceLockKey(resourceID), s.cfg.LockWaitTimeout, s.cfg.LockLeaseTimeout, func(ctx context.Context) error {
		return s.resourceRepo.SetAdmissionOpen(ctx, resourceID, open)
	})
}

// fanOutPositions pushes a fresh position to every entry still in the index
// after somebody left it. Best-effort by design.
func (s *admissionEngine) fanOutPositions(ctx context.Context, resourceID string) {
	members, err := s.indexRepo.Members(ctx, resourceID, 0, -1)
	if err != nil {
		s.l.Warnf(ctx, "admissionEngine.fanOutPositions: %v", err)
		return
	}
	if len(members) == 0 {
		return
	}

	state, err := s.resourceRepo.Get(ctx, resourceID)
	if err != nil {
		s.l.Warnf(ctx, "admissionEngine.fanOutPositions: %v", err)
		return
	}

	now := time.Now()
	for i, entryID := range members {
		rank := int64(i)
		s.hub.Push(entryID, models.NotificationEvent{
			Kind:          models.EventPositionUpdate,
			EntryID:       entryID,
			ResourceID:    resourceID,
			Position:      rank,
			EstimatedWait: state.EstimateWait(rank),
			Timestamp:     now,
		})
	}
}

// releaseTicket undoes a NextTicket whose join never committed. Still inside
// the admission lock, so the number was never handed to anyone.
func (s *admissionEngine) releaseTicket(ctx context.Context, resourceID string) {
	if err := s.resourceRepo.ReleaseTicket(ctx, resourceID); err != nil {
		s.l.Errorf(ctx, "admissionEngine.Join release ticket: %v", err)
	}
}

func (s *admissionEngine) getResourceEntry(ctx context.Context, resourceID, entryID string) (*models.QueueEntry, error) {
	e, err := s.entryRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.ResourceID != resourceID {
		return nil, domainErr.ErrEntryNotFound
	}
	return e, nil
}

func (s *admissionEngine) updateQueueGauge(ctx context.Context, resourceID string) {
	if n, err := s.indexRepo.Cardinality(ctx, resourceID); err == nil {
		metrics.SetQueueLength(resourceID, n)
	}
}

func (s *admissionEngine) storeHandle(entryID string, h scheduler.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[entryID] = h
}

func (s *admissionEngine) dropHandle(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, entryID)
}

func (s *admissionEngine) disarmEntry(entryID string) {
	s.mu.Lock()
	h, ok := s.handles[entryID]
	if ok {
		delete(s.handles, entryID)
	}
	s.mu.Unlock()

	if ok {
		s.sched.Disarm(h)
	}
}

func (s *admissionEngine) resourceLockKey(resourceID string) string {
	return fmt.Sprintf("resource:%s", resourceID)
}

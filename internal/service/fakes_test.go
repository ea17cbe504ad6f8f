package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thanhvo2104/admitq/config"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/internal/scheduler"
)

// In-memory stand-ins for the Redis repositories, preserving the semantics
// the engine relies on: version CAS on entries, ticket-ordered index, and an
// atomic ticket counter.

type fakeResourceRepo struct {
	mu     sync.Mutex
	states map[string]*models.ResourceQueueState
}

func newFakeResourceRepo() *fakeResourceRepo {
	return &fakeResourceRepo{states: make(map[string]*models.ResourceQueueState)}
}

func (f *fakeResourceRepo) Create(_ context.Context, state *models.ResourceQueueState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *state
	f.states[state.ResourceID] = &cp
	return nil
}

func (f *fakeResourceRepo) Get(_ context.Context, resourceID string) (*models.ResourceQueueState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[resourceID]
	if !ok {
		return nil, domainErr.ErrResourceNotFound
	}
	cp := *state
	return &cp, nil
}

func (f *fakeResourceRepo) NextTicket(_ context.Context, resourceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[resourceID]
	if !ok {
		return 0, domainErr.ErrResourceNotFound
	}
	state.LastAssignedTicket++
	return state.LastAssignedTicket, nil
}

func (f *fakeResourceRepo) ReleaseTicket(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[resourceID]
	if !ok {
		return domainErr.ErrResourceNotFound
	}
	state.LastAssignedTicket--
	return nil
}

func (f *fakeResourceRepo) SetAdmissionOpen(_ context.Context, resourceID string, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[resourceID]
	if !ok {
		return domainErr.ErrResourceNotFound
	}
	if state.IsAdmissionOpen == open {
		if open {
			return domainErr.ErrAdmissionAlreadyOpen
		}
		return domainErr.ErrAdmissionAlreadyClosed
	}
	state.IsAdmissionOpen = open
	return nil
}

func (f *fakeResourceRepo) SetLastCalledTicket(_ context.Context, resourceID string, ticket int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[resourceID]
	if !ok {
		return domainErr.ErrResourceNotFound
	}
	state.LastCalledTicket = ticket
	return nil
}

func (f *fakeResourceRepo) ResetCounters(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[resourceID]
	if !ok {
		return domainErr.ErrResourceNotFound
	}
	state.IsAdmissionOpen = false
	state.LastAssignedTicket = 0
	state.LastCalledTicket = 0
	return nil
}

func (f *fakeResourceRepo) ListResourceIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.states))
	for id := range f.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeEntryRepo struct {
	mu      sync.Mutex
	entries map[string]*models.QueueEntry

	createErr error
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: make(map[string]*models.QueueEntry)}
}

func (f *fakeEntryRepo) Create(_ context.Context, e *models.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *e
	f.entries[e.ID] = &cp
	return nil
}

func (f *fakeEntryRepo) Get(_ context.Context, entryID string) (*models.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[entryID]
	if !ok {
		return nil, domainErr.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntryRepo) Update(_ context.Context, e *models.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.entries[e.ID]
	if !ok {
		return domainErr.ErrEntryNotFound
	}
	if stored.Version != e.Version {
		return domainErr.ErrVersionConflict
	}
	cp := *e
	cp.Version++
	f.entries[e.ID] = &cp
	e.Version = cp.Version
	return nil
}

func (f *fakeEntryRepo) Delete(_ context.Context, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, entryID)
	return nil
}

type fakeIndexRepo struct {
	mu      sync.Mutex
	tickets map[string]map[string]int64 // resourceID -> entryID -> ticket

	insertErr error
}

func newFakeIndexRepo() *fakeIndexRepo {
	return &fakeIndexRepo{tickets: make(map[string]map[string]int64)}
}

func (f *fakeIndexRepo) Insert(_ context.Context, resourceID, entryID string, ticket int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	q, ok := f.tickets[resourceID]
	if !ok {
		q = make(map[string]int64)
		f.tickets[resourceID] = q
	}
	q[entryID] = ticket
	return nil
}

func (f *fakeIndexRepo) ordered(resourceID string) []string {
	q := f.tickets[resourceID]
	ids := make([]string, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return q[ids[i]] < q[ids[j]] })
	return ids
}

func (f *fakeIndexRepo) Rank(_ context.Context, resourceID, entryID string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.ordered(resourceID) {
		if id == entryID {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeIndexRepo) Cardinality(_ context.Context, resourceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.tickets[resourceID])), nil
}

func (f *fakeIndexRepo) Remove(_ context.Context, resourceID, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tickets[resourceID], entryID)
	return nil
}

func (f *fakeIndexRepo) Members(_ context.Context, resourceID string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.ordered(resourceID)
	if start != 0 || stop != -1 {
		panic("fakeIndexRepo.Members supports full range only")
	}
	return ids, nil
}

func (f *fakeIndexRepo) Purge(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tickets, resourceID)
	return nil
}

// fakeCriticalSection runs the action inline; single-process tests need no
// real mutual exclusion.
type fakeCriticalSection struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCriticalSection) WithLock(ctx context.Context, _ string, _, _ time.Duration, action func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return action(ctx)
}

type fakeScheduler struct {
	mu       sync.Mutex
	armed    []string
	disarmed int
}

func (f *fakeScheduler) Arm(entryID string, _ time.Duration) scheduler.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = append(f.armed, entryID)
	return scheduler.Handle{}
}

func (f *fakeScheduler) Disarm(scheduler.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disarmed++
}

func (f *fakeScheduler) armedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.armed)
}

func (f *fakeScheduler) disarmedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disarmed
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		LockWaitTimeout:    100 * time.Millisecond,
		LockLeaseTimeout:   time.Second,
		NoShowTimeout:      5 * time.Minute,
		ChannelBufferSize:  16,
		ChannelIdleTimeout: time.Minute,
		ResetHour:          4,
		ResetParallelism:   4,
	}
}

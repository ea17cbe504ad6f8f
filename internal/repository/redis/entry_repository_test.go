package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

func newEntryRepoMock(t *testing.T) (EntryRepository, redismock.ClientMock) {
	t.Helper()
	cli, mock := redismock.NewClientMock()
	return NewRedisEntryRepository(cli, logger.InitializeTestZapLogger()), mock
}

func fixedEntry() *models.QueueEntry {
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return &models.QueueEntry{
		ID:           "e-1",
		ResourceID:   "r-1",
		TicketNumber: 7,
		PartySize:    2,
		Identity:     models.Identity{Kind: models.IdentityKindMember, MemberID: "m-1"},
		Status:       models.EntryStatusWaiting,
		QueuedAt:     at,
		Version:      1,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestEntryCreate(t *testing.T) {
	repo, mock := newEntryRepoMock(t)
	e := fixedEntry()

	data, err := json.Marshal(e)
	require.NoError(t, err)
	mock.ExpectSet("admitq:entry:e-1", data, entryTTL).SetVal("OK")

	require.NoError(t, repo.Create(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryGet(t *testing.T) {
	repo, mock := newEntryRepoMock(t)
	e := fixedEntry()

	data, err := json.Marshal(e)
	require.NoError(t, err)
	mock.ExpectGet("admitq:entry:e-1").SetVal(string(data))

	got, err := repo.Get(context.Background(), "e-1")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestEntryGet_NotFound(t *testing.T) {
	repo, mock := newEntryRepoMock(t)

	mock.ExpectGet("admitq:entry:missing").RedisNil()

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErr.ErrEntryNotFound)
}

func TestEntryUpdate_IncrementsVersion(t *testing.T) {
	repo, mock := newEntryRepoMock(t)
	e := fixedEntry()

	next := *e
	next.Version = 2
	data, err := json.Marshal(&next)
	require.NoError(t, err)

	mock.ExpectEvalSha(casScript.Hash(), []string{"admitq:entry:e-1"}, int64(1), string(data)).SetVal(int64(1))

	require.NoError(t, repo.Update(context.Background(), e))
	assert.Equal(t, int64(2), e.Version)
}

func TestEntryUpdate_VersionConflict(t *testing.T) {
	repo, mock := newEntryRepoMock(t)
	e := fixedEntry()

	next := *e
	next.Version = 2
	data, err := json.Marshal(&next)
	require.NoError(t, err)

	mock.ExpectEvalSha(casScript.Hash(), []string{"admitq:entry:e-1"}, int64(1), string(data)).SetVal(int64(0))

	err = repo.Update(context.Background(), e)
	assert.ErrorIs(t, err, domainErr.ErrVersionConflict)
	assert.Equal(t, int64(1), e.Version, "a failed update must not bump the local version")
}

func TestEntryUpdate_MissingEntry(t *testing.T) {
	repo, mock := newEntryRepoMock(t)
	e := fixedEntry()

	next := *e
	next.Version = 2
	data, err := json.Marshal(&next)
	require.NoError(t, err)

	mock.ExpectEvalSha(casScript.Hash(), []string{"admitq:entry:e-1"}, int64(1), string(data)).SetVal(int64(-1))

	err = repo.Update(context.Background(), e)
	assert.ErrorIs(t, err, domainErr.ErrEntryNotFound)
}

func TestEntryDelete(t *testing.T) {
	repo, mock := newEntryRepoMock(t)

	mock.ExpectDel("admitq:entry:e-1").SetVal(1)

	require.NoError(t, repo.Delete(context.Background(), "e-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhvo2104/admitq/pkg/logger"
)

func newIndexRepoMock(t *testing.T) (IndexRepository, redismock.ClientMock) {
	t.Helper()
	cli, mock := redismock.NewClientMock()
	return NewRedisIndexRepository(cli, logger.InitializeTestZapLogger()), mock
}

func TestIndexInsert(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectZAdd("admitq:r-1:queue", redis.Z{Score: 7, Member: "e-1"}).SetVal(1)

	require.NoError(t, repo.Insert(context.Background(), "r-1", "e-1", 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndexRank(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectZRank("admitq:r-1:queue", "e-1").SetVal(2)

	rank, present, err := repo.Rank(context.Background(), "r-1", "e-1")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, int64(2), rank)
}

func TestIndexRank_MissingMember(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectZRank("admitq:r-1:queue", "gone").RedisNil()

	rank, present, err := repo.Rank(context.Background(), "r-1", "gone")
	require.NoError(t, err)
	assert.False(t, present)
	assert.Equal(t, int64(0), rank)
}

func TestIndexCardinality(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectZCard("admitq:r-1:queue").SetVal(3)

	n, err := repo.Cardinality(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestIndexRemove(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectZRem("admitq:r-1:queue", "e-1").SetVal(1)

	require.NoError(t, repo.Remove(context.Background(), "r-1", "e-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndexMembers(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectZRange("admitq:r-1:queue", 0, -1).SetVal([]string{"e-1", "e-2", "e-3"})

	members, err := repo.Members(context.Background(), "r-1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"e-1", "e-2", "e-3"}, members)
}

func TestIndexPurge(t *testing.T) {
	repo, mock := newIndexRepoMock(t)

	mock.ExpectDel("admitq:r-1:queue").SetVal(1)

	require.NoError(t, repo.Purge(context.Background(), "r-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package seen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockRedis) Close() error {
	return m.Called().Error(0)
}

func TestRedisSet_Seen(t *testing.T) {
	rdb := new(mockRedis)
	rdb.On("Exists", mock.Anything, []string{"p:http://x/1"}).Return(redis.NewIntResult(1, nil))
	rdb.On("Exists", mock.Anything, []string{"p:http://x/2"}).Return(redis.NewIntResult(0, nil))

	s := newRedisSet(rdb, Options{KeyPrefix: "p:"})

	ok, err := s.Seen(context.Background(), "http://x/1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Seen(context.Background(), "http://x/2")
	require.NoError(t, err)
	assert.False(t, ok)
	rdb.AssertExpectations(t)
}

func TestRedisSet_SeenError(t *testing.T) {
	rdb := new(mockRedis)
	rdb.On("Exists", mock.Anything, mock.Anything).Return(redis.NewIntResult(0, errors.New("conn refused")))

	_, err := newRedisSet(rdb, Options{}).Seen(context.Background(), "http://x/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seen: exists")
}

func TestRedisSet_Mark(t *testing.T) {
	rdb := new(mockRedis)
	rdb.On("Set", mock.Anything, "newsstream:seen:http://x/1", 1, 72*time.Hour).Return(redis.NewStatusResult("OK", nil))

	s := newRedisSet(rdb, Options{TTL: 72 * time.Hour})
	require.NoError(t, s.Mark(context.Background(), "http://x/1"))
	rdb.AssertExpectations(t)
}

func TestRedisSet_MarkError(t *testing.T) {
	rdb := new(mockRedis)
	rdb.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(redis.NewStatusResult("", errors.New("readonly")))

	err := newRedisSet(rdb, Options{}).Mark(context.Background(), "http://x/1")
	require.Error(t, err)
}

func TestRedisSet_Close(t *testing.T) {
	rdb := new(mockRedis)
	rdb.On("Close").Return(nil)
	require.NoError(t, newRedisSet(rdb, Options{}).Close())
}

func TestNop(t *testing.T) {
	var s Set = Nop{}
	ok, err := s.Seen(context.Background(), "http://x/1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.Mark(context.Background(), "http://x/1"))
	assert.NoError(t, s.Close())
}

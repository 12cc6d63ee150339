package verdictcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two commands the backend issues.
type fakeRedis struct {
	redis.Cmdable
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewStatusResult("", f.failErr)
	}
	f.data[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := NewRedis(fake, 24*time.Hour)

	_, found, err := c.Get(ctx, "grade:v1:abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "grade:v1:abc", true))
	require.NoError(t, c.Set(ctx, "grade:v1:def", false))
	assert.Equal(t, "1", fake.data["grade:v1:abc"])
	assert.Equal(t, "0", fake.data["grade:v1:def"])
	assert.Equal(t, 24*time.Hour, fake.ttls["grade:v1:abc"])

	verdict, found, err := c.Get(ctx, "grade:v1:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, verdict)

	verdict, found, err = c.Get(ctx, "grade:v1:def")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, verdict)

	stats := c.Stats()
	assert.Equal(t, BackendRedis, stats.Backend)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Nil(t, stats.Pool)
}

func TestRedis_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("connection_error", func(t *testing.T) {
		fake := newFakeRedis()
		fake.failErr = errors.New("dial tcp: connection refused")
		c := NewRedis(fake, time.Hour)

		_, found, err := c.Get(ctx, "k")
		require.Error(t, err)
		assert.False(t, found)
		require.Error(t, c.Set(ctx, "k", true))
		assert.Equal(t, int64(2), c.Stats().Errors)
	})

	t.Run("corrupt_value", func(t *testing.T) {
		fake := newFakeRedis()
		fake.data["k"] = "maybe"
		c := NewRedis(fake, time.Hour)

		_, found, err := c.Get(ctx, "k")
		require.ErrorIs(t, err, errCorruptEntry)
		assert.False(t, found)
	})
}

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "sync:1", time.Minute)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "sync:1", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.TryLock(ctx, "sync:2", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	again, err := l.TryLock(ctx, "sync:1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Unix(1000, 0)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err, "expired lock can be taken over")

	// The stale holder must not release the new holder's lock.
	stale()
	_, err = l.TryLock(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLocked)
	fresh()
}

func TestNewSyncJob(t *testing.T) {
	a, b := NewSyncJob(7), NewSyncJob(7)
	assert.Equal(t, int64(7), a.PlaylistID)
	assert.NotEmpty(t, a.JobID)
	assert.NotEqual(t, a.JobID, b.JobID)
}

// testRedis connects to REDIS_TEST_URL, skipping when it is unset.
func testRedis(t *testing.T) *Redis {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	r := NewFromClient(redis.NewClient(opts), "iptvcatalog-test:"+t.Name()+":")
	require.NoError(t, r.Ping(context.Background()))
	t.Cleanup(func() {
		_ = DelPattern(context.Background(), r, "*")
		_ = r.Close()
	})
	return r
}

func TestRedisJSONHelpers(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()

	require.NoError(t, Set(ctx, r, "channels:1:a", []string{"x"}, time.Minute))
	require.NoError(t, Set(ctx, r, "channels:1:b", []string{"y"}, time.Minute))

	got, err := Get[[]string](ctx, r, "channels:1:a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)

	require.NoError(t, DelPattern(ctx, r, "channels:1:*"))
	_, err = Get[[]string](ctx, r, "channels:1:b")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisLockAndQueue(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()

	l := NewRedisLocker(r)
	unlock, err := l.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	_, err = l.TryLock(ctx, "lock", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
	unlock()
	assert.False(t, IsLocked(ctx, r, "lock"))

	q := NewQueue(r, "")
	job := NewSyncJob(3)
	require.NoError(t, q.Enqueue(ctx, job))
	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, int64(3), got.PlaylistID)
}

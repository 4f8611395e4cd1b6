package app

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redistest "github.com/testcontainers/testcontainers-go/modules/redis"
)

const testLockKey = "dashpulse:sweeper:leader"

func setupTestRedis(t *testing.T) *goredis.Client {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()

	container, err := redistest.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func newElector(rdb *goredis.Client, instanceID string) *LeaderElector {
	return NewLeaderElector(rdb, testLockKey, instanceID, 30*time.Second)
}

func TestLeaderElector_TryAcquire_SingleInstance(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector := newElector(rdb, "instance-1")

	acquired, err := elector.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "first instance should acquire leadership")

	val, err := rdb.Get(ctx, testLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "instance-1", val)

	ttl, err := rdb.TTL(ctx, testLockKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 20.0, "TTL should be ~30s")
	assert.LessOrEqual(t, ttl.Seconds(), 30.0)
}

func TestLeaderElector_TryAcquire_MultipleInstances(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	acquired, err := newElector(rdb, "instance-1").TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = newElector(rdb, "instance-2").TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "instance 2 should NOT become leader")
}

func TestLeaderElector_Renew(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector := newElector(rdb, "instance-1")
	acquired, err := elector.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// renewal restores the full lease
	require.NoError(t, rdb.PExpire(ctx, testLockKey, 2*time.Second).Err())
	require.NoError(t, elector.Renew(ctx))
	ttl, err := rdb.TTL(ctx, testLockKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 20.0)

	// another instance took over
	require.NoError(t, rdb.Set(ctx, testLockKey, "instance-2", 30*time.Second).Err())
	err = elector.Renew(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeper lease held by instance-2")
	val, err := rdb.Get(ctx, testLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "instance-2", val, "a failed renewal leaves the other holder alone")

	// lease expired
	require.NoError(t, rdb.Del(ctx, testLockKey).Err())
	require.ErrorIs(t, elector.Renew(ctx), ErrLeaseLost)
}

func TestLeaderElector_Release(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector1 := newElector(rdb, "instance-1")
	elector2 := newElector(rdb, "instance-2")

	acquired, err := elector1.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// a non-leader release must not delete the lock
	require.NoError(t, elector2.Release(ctx))
	val, err := rdb.Get(ctx, testLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "instance-1", val)

	require.NoError(t, elector1.Release(ctx))
	_, err = rdb.Get(ctx, testLockKey).Result()
	assert.ErrorIs(t, err, goredis.Nil, "lock key should be deleted")

	acquired, err = elector2.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "instance 2 should take over immediately after release")
}

package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		s.Close()
	})

	return s, client
}

func TestRedisLock(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	t.Run("BasicLockUnlock", func(t *testing.T) {
		lock := NewRedisLock(client, "test_lock", time.Minute)

		require.NoError(t, lock.Lock(ctx))

		held, err := lock.IsHeld(ctx)
		assert.NoError(t, err)
		assert.True(t, held)

		assert.NoError(t, lock.Unlock(ctx))

		held, err = lock.IsHeld(ctx)
		assert.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("LockConflict", func(t *testing.T) {
		lock1 := NewRedisLock(client, "conflict_lock", time.Minute)
		lock2 := NewRedisLock(client, "conflict_lock", time.Minute)

		require.NoError(t, lock1.Lock(ctx))
		assert.ErrorIs(t, lock2.Lock(ctx), ErrLockFailed)

		// only the holder may release
		assert.ErrorIs(t, lock2.Unlock(ctx), ErrLockNotHeld)
		assert.NoError(t, lock1.Unlock(ctx))
		assert.NoError(t, lock2.Lock(ctx))
		assert.NoError(t, lock2.Unlock(ctx))
	})

	t.Run("Expiry", func(t *testing.T) {
		lock := NewRedisLock(client, "expiring_lock", time.Second)
		require.NoError(t, lock.Lock(ctx))

		mr.FastForward(2 * time.Second)

		held, err := lock.IsHeld(ctx)
		assert.NoError(t, err)
		assert.False(t, held)
		assert.ErrorIs(t, lock.Unlock(ctx), ErrLockNotHeld)
	})

	t.Run("Extend", func(t *testing.T) {
		lock := NewRedisLock(client, "extend_lock", time.Second)
		require.NoError(t, lock.Lock(ctx))
		require.NoError(t, lock.Extend(ctx, time.Minute))

		mr.FastForward(2 * time.Second)

		held, err := lock.IsHeld(ctx)
		assert.NoError(t, err)
		assert.True(t, held)
		assert.NoError(t, lock.Unlock(ctx))
	})

	t.Run("TryLockGivesUp", func(t *testing.T) {
		holder := NewRedisLock(client, "busy_lock", time.Minute)
		require.NoError(t, holder.Lock(ctx))
		defer holder.Unlock(ctx)

		waiter := NewRedisLock(client, "busy_lock", time.Minute)
		err := waiter.TryLock(ctx, 3, 5*time.Millisecond)
		assert.ErrorIs(t, err, ErrLockFailed)
	})
}

func TestLockerWithLock(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewLocker(client, time.Second)
	ctx := context.Background()

	t.Run("Serializes", func(t *testing.T) {
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := locker.WithLock(ctx, "lock:serial", func() error {
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside)
	})

	t.Run("PropagatesErrorAndReleases", func(t *testing.T) {
		boom := errors.New("boom")
		err := locker.WithLock(ctx, "lock:err", func() error { return boom })
		assert.ErrorIs(t, err, boom)

		exists, err := client.Exists(ctx, "lock:err").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
	})
}

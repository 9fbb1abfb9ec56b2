package limiter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client
}

func TestSlidingWindowLimiter(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("AllowWithinLimit", func(t *testing.T) {
		limiter := NewSlidingWindowLimiter(client, "within", 5, time.Minute)

		for i := 0; i < 5; i++ {
			allowed, err := limiter.Allow(ctx, "user:1")
			assert.NoError(t, err)
			assert.True(t, allowed, "Request %d should be allowed", i+1)
		}

		allowed, err := limiter.Allow(ctx, "user:1")
		assert.NoError(t, err)
		assert.False(t, allowed, "6th request should be rejected")
	})

	t.Run("BurstInSameMillisecond", func(t *testing.T) {
		// events landing in one millisecond must still count separately
		limiter := NewSlidingWindowLimiter(client, "burst", 3, time.Minute)

		allowedCount := 0
		for i := 0; i < 10; i++ {
			allowed, err := limiter.Allow(ctx, "user:2")
			require.NoError(t, err)
			if allowed {
				allowedCount++
			}
		}
		assert.Equal(t, 3, allowedCount)
	})

	t.Run("DifferentKeys", func(t *testing.T) {
		limiter := NewSlidingWindowLimiter(client, "keys", 1, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, err := limiter.Allow(ctx, fmt.Sprintf("user:%d", 100+i))
			assert.NoError(t, err)
			assert.True(t, allowed)
		}
	})

	t.Run("WindowSlides", func(t *testing.T) {
		limiter := NewSlidingWindowLimiter(client, "slide", 1, 50*time.Millisecond)

		allowed, err := limiter.Allow(ctx, "user:3")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = limiter.Allow(ctx, "user:3")
		require.NoError(t, err)
		assert.False(t, allowed)

		time.Sleep(80 * time.Millisecond)

		allowed, err = limiter.Allow(ctx, "user:3")
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestKeyedLimiter(t *testing.T) {
	t.Run("BurstThenRefill", func(t *testing.T) {
		limiter := NewKeyedLimiter(1, 2, time.Minute)
		now := time.Now()

		assert.True(t, limiter.AllowAt("1.1.1.1", now))
		assert.True(t, limiter.AllowAt("1.1.1.1", now))
		assert.False(t, limiter.AllowAt("1.1.1.1", now))

		assert.True(t, limiter.AllowAt("1.1.1.1", now.Add(1100*time.Millisecond)))
	})

	t.Run("SeparateKeys", func(t *testing.T) {
		limiter := NewKeyedLimiter(1, 1, time.Minute)
		now := time.Now()

		assert.True(t, limiter.AllowAt("a", now))
		assert.False(t, limiter.AllowAt("a", now))
		assert.True(t, limiter.AllowAt("b", now))
	})

	t.Run("EvictsIdle", func(t *testing.T) {
		limiter := NewKeyedLimiter(10, 10, time.Second)
		now := time.Now()

		limiter.AllowAt("a", now)
		limiter.AllowAt("b", now)
		assert.Equal(t, 2, limiter.Len())

		limiter.AllowAt("c", now.Add(5*time.Second))
		assert.Equal(t, 1, limiter.Len())
	})

	t.Run("ImplementsRateLimiter", func(t *testing.T) {
		var rl RateLimiter = NewKeyedLimiter(5, 5, 0)
		allowed, err := rl.Allow(context.Background(), "k")
		assert.NoError(t, err)
		assert.True(t, allowed)
	})
}

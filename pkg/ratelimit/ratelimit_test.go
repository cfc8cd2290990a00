package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d", i+1)
	}
	assert.False(t, bucket.Allow())

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, bucket.Allow())
}

func TestTokenBucket_FractionalRefill(t *testing.T) {
	// 30 per minute = 0.5 per second
	bucket := NewTokenBucket(1, 0.5)
	require.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	time.Sleep(1100 * time.Millisecond)
	assert.False(t, bucket.Allow(), "half a token is not enough")

	time.Sleep(1000 * time.Millisecond)
	assert.True(t, bucket.Allow())
}

func TestTokenBucket_AllowN(t *testing.T) {
	bucket := NewTokenBucket(10, 2)

	assert.True(t, bucket.AllowN(10))
	assert.False(t, bucket.AllowN(1))

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, bucket.AllowN(2))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(3, 1)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("lobby-1"))
	}
	assert.False(t, limiter.Allow("lobby-1"))
	assert.True(t, limiter.Allow("lobby-2"))
	assert.Equal(t, 2, limiter.ActiveBuckets())

	limiter.Reset("lobby-1")
	assert.True(t, limiter.Allow("lobby-1"))
}

func TestRateLimiter_Take(t *testing.T) {
	limiter := NewPerMinuteLimiter(60, 2)
	defer limiter.Stop()
	ctx := context.Background()

	d, err := limiter.Take(ctx, "svc")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 1, d.Remaining)

	_, _ = limiter.Take(ctx, "svc")
	d, err = limiter.Take(ctx, "svc")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.ResetTime.After(time.Now()))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	defer limiter.Stop()
	limiter.cleanupInterval = 10 * time.Millisecond

	limiter.Allow("idle")
	time.Sleep(30 * time.Millisecond)
	limiter.cleanup()
	assert.Zero(t, limiter.ActiveBuckets())
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(100, 0)
	defer limiter.Stop()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if limiter.Allow(fmt.Sprintf("key-%d", i%2)) {
				atomic.AddInt64(&allowed, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(200), allowed)

	for i := 0; i < 10; i++ {
		limiter.Allow("key-0")
	}
	assert.False(t, limiter.Allow("key-0"))
}

var _ Limiter = (*RateLimiter)(nil)
var _ Limiter = (*RedisRateLimiter)(nil)

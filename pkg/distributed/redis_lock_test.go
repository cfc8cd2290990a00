package distributed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 테스트용 DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	client.FlushDB(ctx)
	return client
}

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, ModeLockKey("pvp"), "instance1", 5*time.Second)
	require.NoError(t, err)

	_, err = manager.AcquireLock(ctx, ModeLockKey("pvp"), "instance2", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// 다른 모드는 독립적
	other, err := manager.AcquireLock(ctx, ModeLockKey("ranked"), "instance2", 5*time.Second)
	require.NoError(t, err)
	defer other.Release(ctx)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestRedisLock_ExtendAndExpire(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:extend", "instance1", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Extend(ctx, 3*time.Second))

	time.Sleep(1500 * time.Millisecond)
	value, err := client.Get(ctx, "test:extend").Result()
	require.NoError(t, err)
	assert.Equal(t, "instance1", value)

	short, err := manager.AcquireLock(ctx, "test:expire", "instance1", 500*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(time.Second)
	assert.ErrorIs(t, short.Extend(ctx, time.Second), ErrLockNotHeld)
	assert.ErrorIs(t, short.Release(ctx), ErrLockNotHeld)
}

func TestModeLocker_SingleHolderPerMode(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	lockers := []*ModeLocker{
		NewModeLocker(client, 5*time.Second),
		NewModeLocker(client, 5*time.Second),
		NewModeLocker(client, 5*time.Second),
	}
	assert.NotEqual(t, lockers[0].InstanceID(), lockers[1].InstanceID())

	var acquired int32
	unlocks := make(chan func(), len(lockers))
	var wg sync.WaitGroup
	for _, l := range lockers {
		wg.Add(1)
		go func(l *ModeLocker) {
			defer wg.Done()
			if unlock, err := l.Lock(ctx, "pvp"); err == nil {
				atomic.AddInt32(&acquired, 1)
				unlocks <- unlock
			}
		}(l)
	}
	wg.Wait()
	close(unlocks)
	assert.Equal(t, int32(1), acquired)
	for unlock := range unlocks {
		unlock()
	}
}

func TestModeLocker_UnlockReleases(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	a := NewModeLocker(client, 5*time.Second)
	b := NewModeLocker(client, 5*time.Second)

	unlock, err := a.Lock(ctx, "duel")
	require.NoError(t, err)

	_, err = b.Lock(ctx, "duel")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	unlock()
	unlockB, err := b.Lock(ctx, "duel")
	require.NoError(t, err)
	unlockB()
}

func TestModeLocker_KeepsLockDuringLongCycle(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	a := NewModeLocker(client, 600*time.Millisecond)
	b := NewModeLocker(client, 600*time.Millisecond)

	unlock, err := a.Lock(ctx, "pvp")
	require.NoError(t, err)

	// 두 배 이상 ttl이 지나도 연장되어 유지된다
	time.Sleep(1500 * time.Millisecond)
	value, err := client.Get(ctx, ModeLockKey("pvp")).Result()
	require.NoError(t, err)
	assert.Equal(t, a.InstanceID(), value)

	_, err = b.Lock(ctx, "pvp")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	unlock()
	unlock()
	_, err = client.Get(ctx, ModeLockKey("pvp")).Result()
	assert.ErrorIs(t, err, redis.Nil)
}

package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제/연장
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisLock Redis 기반 분산 락
type RedisLock struct {
	client redis.UniversalClient
	key    string
	value  string
	ttl    time.Duration
}

// RedisLockManager Redis 분산 락 관리자
type RedisLockManager struct {
	client redis.UniversalClient
}

// NewRedisLockManager Redis Lock Manager 생성
func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// AcquireLock SET NX로 원자적 락 획득
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	success, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{
		client: m.client,
		key:    key,
		value:  value,
		ttl:    ttl,
	}, nil
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.ttl = extension
	return nil
}

// ModeLocker serializes matchmaking cycles of one mode across server instances.
type ModeLocker struct {
	manager    *RedisLockManager
	instanceID string
	ttl        time.Duration
}

// NewModeLocker 모드별 사이클 락 생성. 락을 쥔 동안 ttl/3마다 연장한다.
func NewModeLocker(client redis.UniversalClient, ttl time.Duration) *ModeLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ModeLocker{
		manager:    NewRedisLockManager(client),
		instanceID: uuid.New().String(),
		ttl:        ttl,
	}
}

// ModeLockKey Redis key of a mode's cycle lock.
func ModeLockKey(mode string) string {
	return fmt.Sprintf("matchmaking:lock:%s", mode)
}

// Lock acquires the mode's lock without waiting. ErrLockNotAcquired means another
// instance is running the cycle.
func (l *ModeLocker) Lock(ctx context.Context, mode string) (func(), error) {
	lock, err := l.manager.AcquireLock(ctx, ModeLockKey(mode), l.instanceID, l.ttl)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(lock, done, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
			// 만료된 락은 이미 풀렸으므로 무시
			_ = lock.Release(context.Background())
		})
	}, nil
}

// keepAlive 사이클이 ttl보다 길어져도 다른 인스턴스가 락을 가져가지 않도록 연장.
// 락을 잃으면 멈춘다.
func (l *ModeLocker) keepAlive(lock *RedisLock, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := lock.Extend(ctx, l.ttl)
			cancel()
			if errors.Is(err, ErrLockNotHeld) {
				return
			}
		case <-done:
			return
		}
	}
}

// InstanceID 이 서버 인스턴스의 식별자
func (l *ModeLocker) InstanceID() string {
	return l.instanceID
}

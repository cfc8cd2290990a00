package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	ErrQueueFull  = errors.New("queue is full")
)

const timestampSuffix = ":timestamp"

// 가장 높은 우선순위 아이템을 꺼내 processing hash로 옮긴다
var dequeueScript = redis.NewScript(`
	local items = redis.call('ZPOPMIN', KEYS[1], 1)
	if #items == 0 then
		return nil
	end

	local item_data = items[1]
	local item_id = cjson.decode(item_data).id

	redis.call('HSET', KEYS[2], item_id, item_data)
	redis.call('HSET', KEYS[2], item_id .. ':timestamp', ARGV[1])

	return item_data
`)

// QueueItem Redis Queue의 아이템
type QueueItem struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"` // 높을수록 먼저 처리
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode payload를 v로 역직렬화
func (i *QueueItem) Decode(v interface{}) error {
	return json.Unmarshal(i.Payload, v)
}

// DeadLetter DLQ에 들어간 아이템
type DeadLetter struct {
	Item       QueueItem `json:"item"`
	Reason     string    `json:"reason"`
	MovedAt    time.Time `json:"moved_at"`
	FinalRetry int       `json:"final_retry"`
}

// RedisQueue Redis 기반 우선순위 큐 (sorted set + processing hash + DLQ list)
type RedisQueue struct {
	client        redis.UniversalClient
	queueKey      string
	processingKey string
	dlqKey        string
	maxSize       int // 0 = 무제한
}

// NewRedisQueue Redis Queue 생성
func NewRedisQueue(client redis.UniversalClient, queueName string, maxSize int) *RedisQueue {
	return &RedisQueue{
		client:        client,
		queueKey:      fmt.Sprintf("queue:%s", queueName),
		processingKey: fmt.Sprintf("queue:%s:processing", queueName),
		dlqKey:        fmt.Sprintf("queue:%s:dlq", queueName),
		maxSize:       maxSize,
	}
}

// NewQueueItem payload를 직렬화해 아이템 생성
func NewQueueItem(id, kind string, payload interface{}, priority, maxRetries int) (*QueueItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &QueueItem{
		ID:         id,
		Kind:       kind,
		Payload:    data,
		Priority:   priority,
		MaxRetries: maxRetries,
	}, nil
}

// Enqueue 큐에 아이템 추가
func (q *RedisQueue) Enqueue(ctx context.Context, item *QueueItem) error {
	if q.maxSize > 0 {
		size, err := q.client.ZCard(ctx, q.queueKey).Result()
		if err != nil {
			return fmt.Errorf("failed to get queue size: %w", err)
		}
		if int(size) >= q.maxSize {
			return ErrQueueFull
		}
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	// ZPOPMIN을 쓰므로 priority를 음수 score로 저장
	if err := q.client.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  float64(-item.Priority),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	return nil
}

// Dequeue 우선순위 높은 아이템부터 가져오기
func (q *RedisQueue) Dequeue(ctx context.Context) (*QueueItem, error) {
	result, err := dequeueScript.Run(ctx, q.client, []string{q.queueKey, q.processingKey}, time.Now().Unix()).Text()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var item QueueItem
	if err := json.Unmarshal([]byte(result), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &item, nil
}

// Complete 처리 완료 (processing에서 제거)
func (q *RedisQueue) Complete(ctx context.Context, itemID string) error {
	if err := q.client.HDel(ctx, q.processingKey, itemID, itemID+timestampSuffix).Err(); err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}
	return nil
}

// Retry 다시 큐에 추가. 최대 재시도를 넘으면 DLQ로 이동
func (q *RedisQueue) Retry(ctx context.Context, item *QueueItem) error {
	item.Retries++
	item.UpdatedAt = time.Now()

	if item.Retries >= item.MaxRetries {
		return q.MoveToDLQ(ctx, item, "max retries exceeded")
	}

	if err := q.Complete(ctx, item.ID); err != nil {
		return err
	}

	item.Priority -= 10
	return q.Enqueue(ctx, item)
}

// MoveToDLQ Dead Letter Queue로 이동
func (q *RedisQueue) MoveToDLQ(ctx context.Context, item *QueueItem, reason string) error {
	data, err := json.Marshal(DeadLetter{
		Item:       *item,
		Reason:     reason,
		MovedAt:    time.Now(),
		FinalRetry: item.Retries,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	if err := q.client.LPush(ctx, q.dlqKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}

	return q.Complete(ctx, item.ID)
}

// RecoverStale staleTimeout 이상 processing에 머문 아이템을 재시도
func (q *RedisQueue) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	items, err := q.client.HGetAll(ctx, q.processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	recovered := 0
	now := time.Now().Unix()

	for key, value := range items {
		if strings.HasSuffix(key, timestampSuffix) {
			continue
		}

		timestamp, err := strconv.ParseInt(items[key+timestampSuffix], 10, 64)
		if err != nil {
			continue
		}
		if now-timestamp <= int64(staleTimeout.Seconds()) {
			continue
		}

		var item QueueItem
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			continue
		}
		if err := q.Retry(ctx, &item); err != nil {
			continue
		}
		recovered++
	}

	return recovered, nil
}

// Size 큐 크기
func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey).Result()
}

// ProcessingCount 처리 중 아이템 개수
func (q *RedisQueue) ProcessingCount(ctx context.Context) (int64, error) {
	count, err := q.client.HLen(ctx, q.processingKey).Result()
	if err != nil {
		return 0, err
	}
	// 아이템마다 timestamp 필드가 하나씩 있다
	return count / 2, nil
}

// DLQSize DLQ 크기
func (q *RedisQueue) DLQSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dlqKey).Result()
}

// PeekDLQ DLQ 아이템 확인 (제거하지 않음)
func (q *RedisQueue) PeekDLQ(ctx context.Context, count int64) ([]DeadLetter, error) {
	raw, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}

	letters := make([]DeadLetter, 0, len(raw))
	for _, data := range raw {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(data), &letter); err != nil {
			continue
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

// ClearDLQ DLQ 비우기
func (q *RedisQueue) ClearDLQ(ctx context.Context) error {
	return q.client.Del(ctx, q.dlqKey).Err()
}

type QueueStats struct {
	QueueSize       int64 `json:"queueSize"`
	ProcessingCount int64 `json:"processingCount"`
	DLQSize         int64 `json:"dlqSize"`
}

// GetStats 큐 통계 조회
func (q *RedisQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	queueSize, err := q.Size(ctx)
	if err != nil {
		return nil, err
	}
	processingCount, err := q.ProcessingCount(ctx)
	if err != nil {
		return nil, err
	}
	dlqSize, err := q.DLQSize(ctx)
	if err != nil {
		return nil, err
	}

	return &QueueStats{
		QueueSize:       queueSize,
		ProcessingCount: processingCount,
		DLQSize:         dlqSize,
	}, nil
}

package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventGroupEnqueued     = "group_enqueued"
	EventMatchingRequested = "matching_requested"

	DefaultEventChannel = "matchmaking:events"
)

var errInvalidEvent = errors.New("invalid matchmaking event")

// MatchmakingEvent 매칭 이벤트
type MatchmakingEvent struct {
	Type       string    `json:"type"`
	Mode       string    `json:"mode"`
	GroupID    string    `json:"groupId,omitempty"`
	InstanceID string    `json:"instanceId"`
	Timestamp  time.Time `json:"timestamp"`
}

// MatchmakingCoordinator Redis Pub/Sub으로 인스턴스 간 매칭 트리거를 전달한다.
// 사이클 직렬화는 ModeLocker가 담당한다.
type MatchmakingCoordinator struct {
	client       redis.UniversalClient
	logger       *zap.Logger
	instanceID   string
	eventChannel string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewMatchmakingCoordinator 분산 매칭 조정자 생성
func NewMatchmakingCoordinator(client redis.UniversalClient, logger *zap.Logger) *MatchmakingCoordinator {
	return &MatchmakingCoordinator{
		client:       client,
		logger:       logger,
		instanceID:   uuid.New().String(),
		eventChannel: DefaultEventChannel,
	}
}

// InstanceID 이 조정자의 식별자
func (c *MatchmakingCoordinator) InstanceID() string {
	return c.instanceID
}

// Start 이벤트 수신. ctx가 취소되거나 Stop이 호출될 때까지 블록한다.
func (c *MatchmakingCoordinator) Start(ctx context.Context, handler func(event MatchmakingEvent)) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	pubsub := c.client.Subscribe(ctx, c.eventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Matchmaking coordinator started",
		zap.String("instance_id", c.instanceID),
		zap.String("channel", c.eventChannel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			event, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				c.logger.Warn("Dropping matchmaking event", zap.Error(err))
				continue
			}

			c.logger.Debug("Received matchmaking event",
				zap.String("type", event.Type),
				zap.String("mode", event.Mode),
				zap.String("from", event.InstanceID))

			handler(event)

		case <-ctx.Done():
			c.logger.Info("Matchmaking coordinator stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

// Stop 이벤트 수신 중지
func (c *MatchmakingCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// PublishEvent 매칭 이벤트 발행
func (c *MatchmakingCoordinator) PublishEvent(ctx context.Context, event MatchmakingEvent) error {
	event.InstanceID = c.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, c.eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	c.logger.Debug("Published matchmaking event",
		zap.String("type", event.Type),
		zap.String("mode", event.Mode))
	return nil
}

// NotifyGroupEnqueued 파티가 큐에 추가됨을 알림
func (c *MatchmakingCoordinator) NotifyGroupEnqueued(ctx context.Context, mode, groupID string) error {
	return c.PublishEvent(ctx, MatchmakingEvent{
		Type:    EventGroupEnqueued,
		Mode:    mode,
		GroupID: groupID,
	})
}

// NotifyMatchingRequested 즉시 매칭 요청
func (c *MatchmakingCoordinator) NotifyMatchingRequested(ctx context.Context, mode string) error {
	return c.PublishEvent(ctx, MatchmakingEvent{
		Type: EventMatchingRequested,
		Mode: mode,
	})
}

func decodeEvent(payload []byte) (MatchmakingEvent, error) {
	var event MatchmakingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	switch event.Type {
	case EventGroupEnqueued, EventMatchingRequested:
	default:
		return event, fmt.Errorf("%w: unknown type %q", errInvalidEvent, event.Type)
	}
	if event.Mode == "" {
		return event, fmt.Errorf("%w: missing mode", errInvalidEvent)
	}
	return event, nil
}

package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	TypeMatchFound   = "match_found"
	TypeQueueExpired = "queue_expired"
)

// Hub 계정별 WebSocket 연결 관리
type Hub struct {
	// accountID -> *Client
	clients map[string]*Client
	mu      sync.RWMutex

	outbound   chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	AccountID string      `json:"-"` // 빈 문자열이면 전체 브로드캐스트
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
}

// MatchFoundMessage 매칭 성사 알림
type MatchFoundMessage struct {
	MatchID  string   `json:"matchId"`
	Mode     string   `json:"mode"`
	Team     string   `json:"team"`
	GroupID  string   `json:"groupId"`
	Allies   []string `json:"allies"`
	Enemies  []string `json:"enemies"`
}

// QueueExpiredMessage 대기 만료 알림
type QueueExpiredMessage struct {
	Mode string `json:"mode"`
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		outbound:   make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run ctx가 끝날 때까지 Hub 실행
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.outbound:
			h.deliver(message)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if old, exists := h.clients[client.accountID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("accountId", client.accountID))
	}

	h.clients[client.accountID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("accountId", client.accountID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 교체된 연결은 이미 닫혔다
	if current, exists := h.clients[client.accountID]; exists && current == client {
		delete(h.clients, client.accountID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("accountId", client.accountID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, exists := h.clients[message.AccountID]; exists {
		h.trySend(client, message)
	}
}

func (h *Hub) trySend(client *Client, message *Message) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("accountId", client.accountID),
			zap.String("type", message.Type))
	}
}

// SendToAccount 특정 계정에게 메시지 전송
func (h *Hub) SendToAccount(accountID, msgType string, payload interface{}) {
	h.outbound <- &Message{
		AccountID: accountID,
		Type:      msgType,
		Payload:   payload,
	}
}

// SendMatchFound 매칭 성사 알림
func (h *Hub) SendMatchFound(accountID string, msg MatchFoundMessage) {
	h.SendToAccount(accountID, TypeMatchFound, msg)
}

// SendQueueExpired 대기 만료 알림
func (h *Hub) SendQueueExpired(accountID, mode string) {
	h.SendToAccount(accountID, TypeQueueExpired, QueueExpiredMessage{Mode: mode})
}

// IsConnected 계정 연결 여부
func (h *Hub) IsConnected(accountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[accountID]
	return ok
}

// ConnectedCount 현재 연결 수
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

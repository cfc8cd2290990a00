package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := NewUpgrader(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, upgrader, w, r, r.URL.Query().Get("account"))
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, account string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?account=" + account
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_SendMatchFound(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "acc-1")
	require.Eventually(t, func() bool { return hub.IsConnected("acc-1") }, time.Second, 10*time.Millisecond)

	hub.SendMatchFound("acc-1", MatchFoundMessage{
		MatchID: "m-1",
		Mode:    "pvp",
		Team:    "A",
		GroupID: "g-1",
		Allies:  []string{"acc-1", "acc-2"},
		Enemies: []string{"acc-3", "acc-4"},
	})
	// 다른 계정 메시지는 받지 않는다
	hub.SendQueueExpired("acc-9", "pvp")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string            `json:"type"`
		Payload MatchFoundMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeMatchFound, msg.Type)
	assert.Equal(t, "m-1", msg.Payload.MatchID)
	assert.Equal(t, []string{"acc-3", "acc-4"}, msg.Payload.Enemies)
}

func TestHub_ReplacedConnectionStaysRegistered(t *testing.T) {
	hub, server := startHub(t)

	first := dial(t, server, "acc-1")
	require.Eventually(t, func() bool { return hub.IsConnected("acc-1") }, time.Second, 10*time.Millisecond)

	second := dial(t, server, "acc-1")

	// 이전 연결은 서버가 닫는다
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	time.Sleep(50 * time.Millisecond)
	assert.True(t, hub.IsConnected("acc-1"))
	assert.Equal(t, 1, hub.ConnectedCount())

	hub.SendMatchFound("acc-1", MatchFoundMessage{MatchID: "m-2"})
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "m-2")
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, server := startHub(t)

	conn := dial(t, server, "acc-1")
	require.Eventually(t, func() bool { return hub.IsConnected("acc-1") }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsConnected("acc-1") }, 2*time.Second, 10*time.Millisecond)
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://lobby.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://lobby.example")
	assert.True(t, upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, upgrader.CheckOrigin(req))
}

func TestHub_MessageWithoutAccountIsDropped(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "acc-1")
	require.Eventually(t, func() bool { return hub.IsConnected("acc-1") }, time.Second, 10*time.Millisecond)

	hub.SendToAccount("", TypeQueueExpired, QueueExpiredMessage{Mode: "pvp"})
	hub.SendMatchFound("acc-1", MatchFoundMessage{MatchID: "m-3"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), TypeMatchFound)
	assert.Contains(t, string(data), "m-3")
}

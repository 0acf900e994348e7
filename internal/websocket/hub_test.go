package websocket

import (
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

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop(), time.Hour)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestHubPublishesToClients(t *testing.T) {
	hub := startHub(t)
	srv := newTestServer(t, hub)
	conn := dial(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnected, msg.Type)
	assert.Equal(t, 1, hub.GetOnlineCount())

	hub.Publish(MessageTypeResponse, "req-1", map[string]string{"line": "PORT 4"})

	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeResponse, msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.JSONEq(t, `{"line":"PORT 4"}`, string(msg.Data))
}

func TestClientSubscribeFiltersByRequest(t *testing.T) {
	hub := startHub(t)
	srv := newTestServer(t, hub)
	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": MessageTypeSubscribe,
		"data": map[string]string{"request_id": "wanted"},
	}))

	// 订阅消息由读协程异步处理，轮询直到过滤生效
	require.Eventually(t, func() bool {
		hub.clientsMu.RLock()
		defer hub.clientsMu.RUnlock()
		for _, c := range hub.clients {
			c.mu.RLock()
			ok := c.requestID == "wanted"
			c.mu.RUnlock()
			if ok {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	hub.Publish(MessageTypeResponse, "other", map[string]string{"line": "skip"})
	hub.Publish(MessageTypeResponse, "wanted", map[string]string{"line": "keep"})

	msg := readMessage(t, conn)
	assert.Equal(t, "wanted", msg.RequestID)
}

func TestClientRejectsUnknownMessage(t *testing.T) {
	hub := startHub(t)
	srv := newTestServer(t, hub)
	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"scan"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Contains(t, string(msg.Data), "scan")
	assert.Contains(t, string(msg.Data), `"code":4007`)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Contains(t, string(msg.Data), `"code":4007`)
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), time.Hour)
	go hub.Run()
	srv := newTestServer(t, hub)
	conn := dial(t, srv)
	readMessage(t, conn)

	hub.Stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// 停止后发布不阻塞
	hub.Publish(MessageTypeResponse, "r", "x")
}

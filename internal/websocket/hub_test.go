package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/backend/internal/domain"
)

type gaugeRecorder struct {
	mu    sync.Mutex
	value int
}

func (g *gaugeRecorder) SetWebSocketClients(count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = count
}

func (g *gaugeRecorder) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func startHub(t *testing.T, origins []string) (*Hub, *gaugeRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gauge := &gaugeRecorder{}
	hub := NewHub(origins, gauge, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", HandleWebSocket(hub))
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return hub, gauge, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_BroadcastsMessageEvents(t *testing.T) {
	hub, gauge, url := startHub(t, nil)

	first := dial(t, url)
	second := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return gauge.get() == 2 }, 3*time.Second, 10*time.Millisecond)

	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	hub.OnMessageEvent(context.Background(), domain.MessageEvent{
		Type: domain.EventMessageCreated,
		Message: domain.Message{
			ID:     "m-1",
			Name:   "Jane Doe",
			Email:  "jane@example.com",
			Status: domain.StatusUnread,
		},
		At: at,
	})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageType("message.created"), msg.Type)
		assert.True(t, msg.Timestamp.Equal(at))

		var payload domain.Message
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, "m-1", payload.ID)
		assert.Equal(t, domain.StatusUnread, payload.Status)
	}

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return gauge.get() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestHub_PingPong(t *testing.T) {
	_, _, url := startHub(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.NotEmpty(t, msg.Error)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, _, url := startHub(t, []string{"https://admin.studio.example"})

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://admin.studio.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHub_OnMessageEventDropsWhenBufferFull(t *testing.T) {
	// 未运行的 Hub，广播缓冲区写满后不会阻塞
	hub := NewHub(nil, nil, nil)
	event := domain.MessageEvent{Type: domain.EventMessageDeleted, Message: domain.Message{ID: "m-1"}}

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBufferSize+10; i++ {
			hub.OnMessageEvent(context.Background(), event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnMessageEvent blocked")
	}
	assert.Len(t, hub.broadcast, sendBufferSize)
}

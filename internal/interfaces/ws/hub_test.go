package ws

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

	"conceptdeck-engine/internal/application/ports"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d connections, have %d", want, hub.ConnectionCount())
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	waitForConnections(t, hub, 1)

	hub.Publish(ports.Event{
		Type:   ports.EventOperationFinished,
		Kind:   "rename",
		Path:   "Backend > Databases",
		Status: "succeeded",
		At:     time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event ports.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, ports.EventOperationFinished, event.Type)
	assert.Equal(t, "rename", event.Kind)
	assert.Equal(t, "Backend > Databases", event.Path)
	assert.Equal(t, "succeeded", event.Status)
}

func TestHub_FanOutToMultipleSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	first := dialHub(t, hub)
	second := dialHub(t, hub)
	waitForConnections(t, hub, 2)

	hub.Publish(ports.Event{Type: ports.EventHierarchyRefresh, At: time.Now()})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var event ports.Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, ports.EventHierarchyRefresh, event.Type)
	}
}

func TestHub_DisconnectedClientIsRemoved(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	waitForConnections(t, hub, 1)

	conn.Close()
	waitForConnections(t, hub, 0)
}

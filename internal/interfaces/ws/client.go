package ws

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Send buffer size
	sendBufferSize = 64
)

// Client represents a single subscriber connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// NewClient creates a client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With(zap.String("connectionID", id)),
	}
}

// Start registers the client and begins its read and write pumps.
func (c *Client) Start() {
	c.hub.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump drains inbound frames. Subscribers are read-only; anything
// beyond pong keepalives is logged and discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		message = bytes.TrimSpace(message)
		if string(message) == `{"type":"pong"}` {
			continue
		}
		c.logger.Debug("Ignoring message from subscriber", zap.String("message", string(message)))
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

			// Flush any queued messages in the same write cycle
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.logger.Error("Failed to write batched message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ID returns the client's connection ID.
func (c *Client) ID() string {
	return c.id
}

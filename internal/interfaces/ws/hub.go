// Package ws streams engine events to connected UI clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"conceptdeck-engine/internal/application/ports"
)

// Hub maintains active WebSocket connections and fans engine events out to
// every subscriber. It implements ports.EventPublisher.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	metrics *HubMetrics
}

// HubMetrics tracks fan-out counters.
type HubMetrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesFailed    int64
	mu                sync.RWMutex
}

// NewHub creates an event hub. Run must be called before clients connect.
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The engine serves a local UI. Origin checking is left to the
			// CORS layer in front of the router.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: &HubMetrics{},
	}
}

// Run starts the hub's main event loop.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToAll(message)

		case <-ticker.C:
			h.performHealthCheck()
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() {
	h.cancel()
}

// Publish implements ports.EventPublisher. Events are dropped rather than
// blocking a mutation when the broadcast queue is saturated.
func (h *Hub) Publish(event ports.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event",
			zap.Error(err),
			zap.String("eventType", event.Type),
		)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.metrics.mu.Lock()
		h.metrics.MessagesFailed++
		h.metrics.mu.Unlock()
		h.logger.Warn("Broadcast queue full, event dropped",
			zap.String("eventType", event.Type),
		)
	}
}

// HandleWebSocket upgrades an HTTP request and attaches the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(h, conn, h.logger)
	client.Start()

	h.logger.Info("New WebSocket connection established",
		zap.String("connectionID", client.ID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections++
	h.metrics.mu.Unlock()
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	h.metrics.mu.Lock()
	h.metrics.ActiveConnections--
	h.metrics.mu.Unlock()

	h.logger.Info("Client unregistered",
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", len(h.clients)),
	)
}

func (h *Hub) broadcastToAll(data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
			h.metrics.mu.Lock()
			h.metrics.MessagesSent++
			h.metrics.mu.Unlock()
		default:
			// Client's send channel is full, close it
			h.metrics.mu.Lock()
			h.metrics.MessagesFailed++
			h.metrics.mu.Unlock()

			h.logger.Warn("Closing slow client",
				zap.String("connectionID", client.id),
			)

			go func(c *Client) {
				c.hub.unregister <- c
				c.conn.Close()
			}(client)
		}
	}
}

// performHealthCheck pings all connections to check if they're alive.
func (h *Hub) performHealthCheck() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- []byte(`{"type":"ping"}`):
		default:
			h.logger.Warn("Failed to ping client",
				zap.String("connectionID", client.id),
			)
		}
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
}

// Metrics returns a snapshot of the hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()
	return HubMetrics{
		ActiveConnections: h.metrics.ActiveConnections,
		MessagesSent:      h.metrics.MessagesSent,
		MessagesFailed:    h.metrics.MessagesFailed,
	}
}

// ConnectionCount returns the number of active subscribers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

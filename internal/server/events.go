package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/stream"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingPeriod   = 30 * time.Second
	eventClientBuffer = 64
)

// EventHub fans engine events out to WebSocket subscribers.
// A slow subscriber loses events rather than stalling the engine.
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
	dropped uint64
	sent    uint64
}

type eventClient struct {
	conn *websocket.Conn
	send chan stream.Event
	done chan struct{}
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// HubStats represents event hub statistics
type HubStats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// NewEventHub creates an empty hub
func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed is read-only monitoring data
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*eventClient]struct{}),
	}
}

// Publish queues e for every subscriber; it never blocks.
// Its signature matches stream.Listener.
func (h *EventHub) Publish(e stream.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- e:
			h.sent++
		default:
			h.dropped++
		}
	}
}

// ServeHTTP upgrades the request and streams events as JSON text messages
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &eventClient{
		conn: conn,
		send: make(chan stream.Event, eventClientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(eventWriteTimeout))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Event subscriber connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("subscribers", count),
	)

	go h.writeLoop(c)
	h.readLoop(c)

	h.remove(c)
	h.logger.Info("Event subscriber disconnected", slog.String("remote_addr", r.RemoteAddr))
}

// readLoop discards client messages and returns once the connection fails
func (h *EventHub) readLoop(c *eventClient) {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(c *eventClient) {
	defer c.close()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := c.conn.WriteJSON(e); err != nil {
				h.logger.Debug("Event write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// GetStats returns current hub statistics
func (h *EventHub) GetStats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HubStats{
		Clients: len(h.clients),
		Sent:    h.sent,
		Dropped: h.dropped,
	}
}

// Close disconnects every subscriber and refuses new ones
func (h *EventHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*eventClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(eventWriteTimeout))
		c.close()
	}
}

// Package ws pushes pipeline events to connected dashboard clients over
// websocket. Events are JSON envelopes: {"event": <name>, "data": <payload>}.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	// sendBuffer absorbs short bursts per client; a client whose buffer is
	// full is dropped rather than stalling the broadcaster.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from a different origin in dev.
	CheckOrigin: func(*http.Request) bool { return true },
}

// client pairs a connection with its outbound queue. The write pump is the
// connection's only writer, as gorilla requires.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans events out to them. Each client gets
// a buffered queue and its own write pump, so one stalled dashboard cannot
// delay the pipeline or the other clients.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ServeHTTP upgrades the request and registers the client. The read pump only
// drains control frames; clients never send data.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws client connected", "remote", conn.RemoteAddr().String(), "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the client's queue. It exits when the queue is closed by
// drop or when a write fails.
func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			h.drop(c)
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("ws write failed, dropping client", "error", err)
			h.drop(c)
			return
		}
	}
}

// Broadcast queues one event for every connected client. Enqueueing never
// blocks; a client with a full queue is dropped.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshal ws event", "event", event, "error", err)
		return
	}

	var stalled []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.logger.Debug("ws client too slow, dropping")
		h.drop(c)
	}
}

// ClientCount reports how many dashboard clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client; used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.drop(c)
	}
}

// drop unregisters the client, closes its queue and its connection. Queue
// sends in Broadcast run under the same mutex, so closing here is safe.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

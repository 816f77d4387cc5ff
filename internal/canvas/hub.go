// Package canvas owns the live side of the server: the WebSocket hub that
// fans element mutations out to connected rendering clients, the bridge that
// turns client capabilities into synchronous calls, and the HTTP server that
// hosts both.
package canvas

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks the set of connected canvas clients. Connections are
// connection-scoped state only; nothing here persists.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Register adds a connection and delivers its welcome messages in order,
// before any subsequent broadcast can interleave.
func (h *Hub) Register(conn *websocket.Conn, welcome ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	for _, msg := range welcome {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("hub: marshal welcome message: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.clients, conn)
			conn.Close()
			return
		}
	}
}

// Unregister removes and closes a connection. Safe to call twice.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast serializes the message once and delivers it to every connected
// client as one logical step. A failed write drops that client; it is never
// an error for the caller.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: marshal broadcast: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// CloseAll closes every connection. Used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

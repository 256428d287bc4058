package audit

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds one broadcast write; a client that cannot drain within it
// is dropped instead of stalling the dispatch goroutine.
const writeWait = 10 * time.Second

// client wraps a feed connection with its own write lock. Broadcasts arrive
// from concurrent dispatch goroutines and a websocket connection allows only
// one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(message)
}

// Hub fans audit entries out to connected feed clients. One connection per
// user; a reconnect replaces the previous connection.
type Hub struct {
	clients map[int64]*client
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]*client),
	}
}

func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if old, exists := h.clients[userID]; exists && old.conn != nil {
		_ = old.conn.Close()
	}

	h.clients[userID] = &client{conn: conn}
}

func (h *Hub) Unregister(userID int64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if cl, exists := h.clients[userID]; exists {
		if cl.conn != nil {
			_ = cl.conn.Close()
		}
		delete(h.clients, userID)
	}
}

// Broadcast sends an entry to every connected client. Slow or failed writers
// are dropped; they never propagate to the recorder.
func (h *Hub) Broadcast(message interface{}) {
	h.mutex.RLock()
	clients := make(map[int64]*client, len(h.clients))
	for id, cl := range h.clients {
		clients[id] = cl
	}
	h.mutex.RUnlock()

	for id, cl := range clients {
		if err := cl.write(message); err != nil {
			h.Unregister(id)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, cl := range h.clients {
		if cl.conn != nil {
			_ = cl.conn.Close()
		}
		delete(h.clients, id)
	}
}

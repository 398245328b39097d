package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

type StatusUpdate struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	// correlationID filters updates; empty means all notifications.
	correlationID string
}

// Hub fans status transitions out to connected websocket clients. A client
// may subscribe to a single correlation id or to the full stream.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// Accept upgrades the request and registers the client. The correlation_id
// query parameter narrows the subscription.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	c := &client{
		conn:          conn,
		correlationID: r.URL.Query().Get("correlation_id"),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.readPump(c)
	return nil
}

func (h *Hub) Broadcast(correlationID, status, errMsg string) {
	data, err := json.Marshal(StatusUpdate{
		CorrelationID: correlationID,
		Status:        status,
		Error:         errMsg,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.correlationID != "" && c.correlationID != correlationID {
			continue
		}
		go func(c *client) {
			if err := c.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
				h.removeClient(c)
			}
		}(c)
	}
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	for {
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

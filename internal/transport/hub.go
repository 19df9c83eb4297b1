// Package transport provides the realtime WebSocket surface: tick broadcasts
// to every connected client and targeted action results back to the
// submitting connection.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/civitas/internal/engine"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds per-client queued messages; a client that cannot
	// drain this falls behind and is disconnected rather than stalling the
	// tick broadcast.
	sendBuffer = 64

	maxMessageSize = 8 * 1024
)

// Envelope is the typed frame sent to clients.
type Envelope struct {
	Type string `json:"type"` // "tick" | "action_result" | "welcome" | "error"
	Data any    `json:"data,omitempty"`
}

// clientFrame is an inbound message from a client.
type clientFrame struct {
	Type   string               `json:"type"` // "action"
	Action engine.ActionRequest `json:"action"`
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans tick output out to all clients and routes action results back to
// their submitting connection.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	// OnAction receives parsed action submissions, already stamped with the
	// submitting connection's ID.
	OnAction func(engine.ActionRequest)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request into a hub connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	slog.Info("client connected", "conn", c.id, "remote", conn.RemoteAddr())
	c.enqueue(Envelope{Type: "welcome", Data: map[string]string{"connId": c.id}})

	go c.writePump()
	go c.readPump()
}

// Broadcast sends one tick's output to every connected client.
func (h *Hub) Broadcast(out engine.TickOutput) {
	raw, err := json.Marshal(Envelope{Type: "tick", Data: out})
	if err != nil {
		slog.Error("tick broadcast marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- raw:
		default:
			// Slow consumer: drop the frame rather than block the tick.
			slog.Warn("dropping tick frame for slow client", "conn", c.id)
		}
	}
}

// SendResult delivers an action result to its submitting connection, if it
// is still attached.
func (h *Hub) SendResult(res engine.ActionResult) {
	if res.ConnID == "" {
		return
	}
	h.mu.RLock()
	c := h.clients[res.ConnID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	c.enqueue(Envelope{Type: "action_result", Data: res})
}

// ClientCount returns the number of attached connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *Client) enqueue(env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		slog.Info("client disconnected", "conn", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("client read error", "conn", c.id, "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.enqueue(Envelope{Type: "error", Data: map[string]string{"error": "malformed frame"}})
			continue
		}
		if frame.Type != "action" {
			c.enqueue(Envelope{Type: "error", Data: map[string]string{"error": "unknown frame type"}})
			continue
		}

		frame.Action.ConnID = c.id
		if c.hub.OnAction != nil {
			c.hub.OnAction(frame.Action)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/fuomag9/onlinetracker/internal/auth"
)

// Message types pushed to dashboard clients
const (
	TypeCheckResult = "check_result"
	TypeAlert       = "alert"
	TypeAgent       = "agent"
)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	mu       sync.Mutex
	monitors map[int]bool // empty means all monitors
}

// Hub maintains active clients and broadcasts messages
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan envelope
	register       chan *Client
	unregister     chan *Client
	mu             sync.RWMutex
	jwtSecret      string
	allowedOrigins []string
	logger         *zap.Logger
	done           chan struct{}
}

type envelope struct {
	monitorID int
	data      []byte
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan envelope, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
		logger:         logger,
		done:           make(chan struct{}),
	}
}

// Run starts the hub and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Debug("websocket client disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.monitorID) {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for all clients subscribed to monitorID (0 for every client).
// It never blocks; messages are dropped while the queue is full.
func (h *Hub) Broadcast(msgType string, monitorID int, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msgJSON, err := json.Marshal(Message{Type: msgType, Payload: payloadJSON})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- envelope{monitorID: monitorID, data: msgJSON}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message", zap.String("type", msgType))
	}
	return nil
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	subject, err := auth.ParseToken(token, h.jwtSecret)
	if err != nil {
		h.logger.Info("websocket connection rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:       "operator:" + subject + "@" + r.RemoteAddr,
		Conn:     conn,
		Hub:      h,
		Send:     make(chan []byte, 256),
		monitors: make(map[int]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) wants(monitorID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return monitorID == 0 || len(c.monitors) == 0 || c.monitors[monitorID]
}

func normalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, message, err := c.Conn.Read(ctx)
		if err != nil {
			if !normalClose(err) {
				c.Hub.logger.Debug("websocket read failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.logger.Debug("failed to parse websocket message", zap.Error(err))
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ctx := context.Background()
	for message := range c.Send {
		if err := c.Conn.Write(ctx, websocket.MessageText, message); err != nil {
			if !normalClose(err) {
				c.Hub.logger.Debug("websocket write failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
	}
}

type subscription struct {
	MonitorIDs []int `json:"monitor_ids"`
}

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case "subscribe", "unsubscribe":
		var sub subscription
		if err := json.Unmarshal(msg.Payload, &sub); err != nil {
			return
		}
		c.mu.Lock()
		for _, id := range sub.MonitorIDs {
			if msg.Type == "subscribe" {
				c.monitors[id] = true
			} else {
				delete(c.monitors, id)
			}
		}
		c.mu.Unlock()
	case "ping":
		response, _ := json.Marshal(Message{Type: "pong", Payload: json.RawMessage(`{}`)})
		if err := c.Conn.Write(ctx, websocket.MessageText, response); err != nil {
			c.Hub.logger.Debug("websocket pong failed", zap.String("client", c.ID), zap.Error(err))
		}
	default:
		c.Hub.logger.Debug("unknown websocket message type", zap.String("type", msg.Type))
	}
}

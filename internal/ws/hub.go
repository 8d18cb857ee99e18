package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed to dashboard clients.
const (
	EventMessage      = "new_message"
	EventConversation = "conversation_update"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	queueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one dashboard connection. A zero workspaceID receives every workspace's events.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	workspaceID uint
}

func (c *Client) wants(workspaceID uint) bool {
	return c.workspaceID == 0 || c.workspaceID == workspaceID
}

type envelope struct {
	workspaceID uint
	payload     []byte
}

// Hub fans live engine events out to the dashboards subscribed to their workspace.
// Events published while the queue is full are dropped, as are slow clients.
type Hub struct {
	clients    map[*Client]struct{}
	events     chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		events:     make(chan envelope, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			logger.Debug("websocket client registered", zap.Uint("workspaceID", client.workspaceID))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			h.mu.Unlock()
			logger.Debug("websocket client unregistered", zap.Uint("workspaceID", client.workspaceID))
		case ev := <-h.events:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(ev.workspaceID) {
					continue
				}
				select {
				case client.send <- ev.payload:
				default:
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) {
	close(client.send)
	delete(h.clients, client)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publish queues an event for the clients of a workspace without blocking.
func (h *Hub) Publish(workspaceID uint, eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		logger.Error("error marshaling websocket event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.events <- envelope{workspaceID: workspaceID, payload: payload}:
	default:
		logger.Warn("websocket event queue full, dropping event",
			zap.String("type", eventType),
			zap.Uint("workspaceID", workspaceID))
	}
}

func (h *Hub) NotifyMessage(msg models.Message) {
	h.Publish(msg.WorkspaceID, EventMessage, msg)
}

func (h *Hub) NotifyConversation(conv models.Conversation) {
	h.Publish(conv.WorkspaceID, EventConversation, conv)
}

// ServeWs upgrades the request. The optional "workspace" query parameter limits the
// connection to one workspace's events.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	var workspaceID uint
	if raw := r.URL.Query().Get("workspace"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid workspace", http.StatusBadRequest)
			return
		}
		workspaceID = uint(id)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, queueSize), workspaceID: workspaceID}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Frames from dashboards are ignored.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
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
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

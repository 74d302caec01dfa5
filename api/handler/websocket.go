package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DetectionEvent is broadcast to websocket clients after each processed upload.
type DetectionEvent struct {
	RequestID  string             `json:"request_id"`
	Filename   string             `json:"filename"`
	TotalCount int                `json:"total_count"`
	Detections []shaper.Detection `json:"detections"`
}

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// wsClient is one connection. Its writer goroutine owns conn writes; the hub
// only queues onto send and closes it when the client leaves.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
}

// writePump forwards queued messages until send is closed or a write fails.
func (c *wsClient) writePump(log logrus.FieldLogger) {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.WithError(err).Debug("websocket write")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
}

// Hub fans detection events out to the connected websocket clients.
// A client that cannot keep up with its send buffer is dropped.
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	log        logrus.FieldLogger
}

// NewHub creates a hub. Call Run before accepting connections.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("clients", n).Debug("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.remove(client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("clients", n).Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.Debug("websocket client too slow, dropping")
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for broadcast. Events are dropped when the queue is full.
func (h *Hub) Publish(event DetectionEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("marshal detection event")
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("broadcast queue full, dropping detection event")
	}
}

// WebSocketHandler upgrades /ws connections and attaches them to a Hub.
type WebSocketHandler struct {
	hub *Hub
}

// NewWebSocketHandler returns a handler for hub.
func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket handles GET /ws.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := newWSClient(conn)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump(h.hub.log)
	go func() {
		defer func() {
			select {
			case h.hub.unregister <- client:
			case <-h.hub.done:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.hub.log.WithError(err).Debug("websocket read")
				}
				return
			}
		}
	}()
}

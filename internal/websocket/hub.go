package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiplaza/serving-client/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans session snapshots out to every connected client
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	quit       chan struct{}

	logger *zap.SugaredLogger
	mu     sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		quit:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debugw("websocket client registered", "client_id", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Debugw("websocket client unregistered", "client_id", client.ID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// Slow consumer; it reconnects and gets a fresh snapshot.
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and disconnects all clients
func (h *Hub) Stop() {
	close(h.quit)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a new client. After Stop the client's Send channel is closed
// instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client.Send)
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// BroadcastSnapshot queues a snapshot for all clients. It never blocks; when
// the queue is full the update is dropped since a later snapshot supersedes it.
func (h *Hub) BroadcastSnapshot(snap model.Snapshot) {
	data, err := encodeSnapshot(snap)
	if err != nil {
		h.logger.Errorw("failed to marshal snapshot message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warnw("broadcast queue full, dropping snapshot", "version", snap.Version)
	}
}

func encodeSnapshot(snap model.Snapshot) ([]byte, error) {
	return json.Marshal(model.WSSnapshotMessage{
		Type:     model.WSMessageTypeSnapshot,
		Snapshot: snap,
	})
}

// HandleConnection serves one WebSocket connection. The current snapshot is
// sent first so a client never waits for the next transition.
func (h *Hub) HandleConnection(c *websocket.Conn, current model.Snapshot) {
	client := &Client{
		ID:   uuid.New().String(),
		Conn: c,
		Send: make(chan []byte, 256),
	}

	if data, err := encodeSnapshot(current); err == nil {
		client.Send <- data
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warnw("websocket read failed", "client_id", client.ID, "error", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(client, "INVALID_MESSAGE", "message is not valid JSON")
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.send(client, data)
		}
	}
}

func (h *Hub) sendError(client *Client, code, message string) {
	data, err := json.Marshal(model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		Error: model.WSError{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	h.send(client, data)
}

// send writes to a client that may already have been dropped by Run
func (h *Hub) send(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

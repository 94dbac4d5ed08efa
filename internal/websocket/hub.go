package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by user ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to a user's connections
	broadcast chan *BroadcastMessage

	log *logger.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	UserID  string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        log.With("component", "ws_hub"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			h.log.Debug("Client registered", "user_id", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debug("Client unregistered", "user_id", client.UserID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.UserID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.evict(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client and closes its send channel. Callers hold mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}
}

// evict drops a slow client by closing its socket. The reader loop then
// unregisters it. Callers hold mu.
func (h *Hub) evict(client *Client) {
	if clients, ok := h.clients[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	if client.Conn != nil {
		_ = client.Conn.Close()
	}
	h.log.Warn("Evicted slow client", "user_id", client.UserID)
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Connections returns how many sockets a user has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastState sends a collection snapshot to every socket of a user. The
// message is dropped when the hub is saturated; the next change carries a
// full snapshot anyway.
func (h *Hub) BroadcastState(userID string, msg *model.WSStateMessage) {
	msg.Type = model.WSMessageTypeState
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to marshal state message", "error", err)
		return
	}
	h.enqueue(userID, data)
}

// BroadcastError sends an error message to every socket of a user.
func (h *Hub) BroadcastError(userID string, code, message string) {
	msg := model.WSErrorMessage{
		Type: model.WSMessageTypeError,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to marshal error message", "error", err)
		return
	}
	h.enqueue(userID, data)
}

func (h *Hub) enqueue(userID string, data []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{UserID: userID, Message: data}:
	default:
		h.log.Warn("Broadcast queue full, dropping message", "user_id", userID)
	}
}

// HandleConnection serves one socket until it closes. initial, when set, is
// sent before any broadcast.
func (h *Hub) HandleConnection(c *websocket.Conn, userID string, initial *model.WSStateMessage) {
	client := &Client{
		UserID: userID,
		Conn:   c,
		Send:   make(chan []byte, 256),
	}

	if initial != nil {
		initial.Type = model.WSMessageTypeState
		if data, err := json.Marshal(initial); err == nil {
			client.Send <- data
		}
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("WebSocket error", "user_id", userID, "error", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}

package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leafsync/server/internal/observability"
)

// Event types pushed to connected clients
const (
	EventScanCached   = "scan_cached"
	EventSyncStarted  = "sync_started"
	EventSyncComplete = "sync_complete"
	EventSyncFailed   = "sync_failed"
	EventConnectivity = "connectivity"
)

// Event is a message broadcast over the websocket
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventClient represents one connected websocket client
type EventClient struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *EventsHub
	closedOnce sync.Once
}

// EventsHub fans sync lifecycle events out to connected clients
type EventsHub struct {
	clients    map[*EventClient]bool
	register   chan *EventClient
	unregister chan *EventClient
	broadcast  chan []byte
	stop       chan struct{}
	mu         sync.RWMutex
}

// NewEventsHub creates a new EventsHub
func NewEventsHub() *EventsHub {
	return &EventsHub{
		clients:    make(map[*EventClient]bool),
		register:   make(chan *EventClient),
		unregister: make(chan *EventClient),
		broadcast:  make(chan []byte, 64),
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's main loop; call in a goroutine
func (h *EventsHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.Debugf("events client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			observability.Debugf("events client disconnected: %s", client.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// Client buffer full, drop the connection
					go func(c *EventClient) {
						select {
						case h.unregister <- c:
						case <-h.stop:
						}
					}(client)
				}
			}
			h.mu.RUnlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients
func (h *EventsHub) Stop() {
	close(h.stop)
}

// Register adds a client to the hub
func (h *EventsHub) Register(client *EventClient) {
	h.register <- client
}

// Broadcast sends an event to every connected client
func (h *EventsHub) Broadcast(eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		observability.Errorf("marshal event: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		// Hub backed up; events are best-effort
	}
}

// ClientCount returns the number of connected clients
func (h *EventsHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a client attached to this hub
func (h *EventsHub) NewClient(id string, conn *websocket.Conn) *EventClient {
	return &EventClient{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, 64),
		hub:  h,
	}
}

// Close closes the client connection. Safe to call after the hub has
// stopped: the unregister send gives up once the run loop is gone.
func (c *EventClient) Close() {
	c.closedOnce.Do(func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// WritePump pumps events from the hub to the websocket connection
func (c *EventClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains the connection; clients only listen, so inbound frames
// are discarded but keep the read deadline alive
func (c *EventClient) ReadPump() {
	defer c.Close()

	c.Conn.SetReadLimit(4 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Package messaging provides the live event feed broadcast over websockets.
package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

// FeedClient represents a single connected dashboard client.
type FeedClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

// FeedEvent is the shape pushed to connected dashboards for each stored event.
type FeedEvent struct {
	EventType  string    `json:"eventType"`
	Category   string    `json:"category"`
	URL        string    `json:"url"`
	SessionID  string    `json:"sessionId"`
	VisitorRef string    `json:"visitorRef,omitempty"`
	LeadRef    string    `json:"leadRef,omitempty"`
	Country    string    `json:"country,omitempty"`
	DeviceType string    `json:"deviceType,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// FeedHub manages all connected feed clients and pushes stored events to them.
type FeedHub struct {
	clients    map[*FeedClient]bool
	register   chan *FeedClient
	unregister chan *FeedClient
	broadcast  chan []byte
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

// NewFeedHub creates a new hub instance.
func NewFeedHub(logger *logging.ChanneledLogger) *FeedHub {
	return &FeedHub{
		clients:    make(map[*FeedClient]bool),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
	}
}

// Run starts the hub's main loop. This should be run as a goroutine.
func (h *FeedHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.logger.Feed().Info("Feed client registered", "clients", len(h.clients))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.logger.Feed().Info("Feed client unregistered", "clients", len(h.clients))
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer, drop the frame rather than block the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register queues a client for registration.
func (h *FeedHub) Register(client *FeedClient) {
	h.register <- client
}

// Unregister queues a client for unregistration.
func (h *FeedHub) Unregister(client *FeedClient) {
	h.unregister <- client
}

// Publish marshals and broadcasts a feed event to all connected clients.
// With no clients connected the payload is still queued and dropped cheaply
// by the hub loop.
func (h *FeedHub) Publish(event FeedEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Feed().Error("Failed to marshal feed event", "error", err.Error())
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Feed().Debug("Feed broadcast buffer full, frame dropped")
	}
}

// ClientCount reports the number of currently connected clients.
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

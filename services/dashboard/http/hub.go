package http

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Message types pushed to dashboard clients.
const (
	MessageState    = "state"
	MessageStatus   = "status"
	MessageInsight  = "insight"
	MessageInsights = "insights"
)

// Hub maintains the set of active websocket clients and broadcasts messages.
type Hub struct {
	log        *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

// NewHub returns a hub; Run must be started before clients register.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		log:        logger.Named("hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every
// client's send channel. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.log.Debug("websocket client registered", zap.String("remote", client.remote))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.log.Debug("websocket client unregistered", zap.String("remote", client.remote))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.Warn("websocket client too slow, dropping", zap.String("remote", client.remote))
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Broadcast queues a {"type","payload"} message for every client. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) Broadcast(kind string, payload any) {
	msg, err := encodeMessage(kind, payload)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("type", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast queue full, message dropped", zap.String("type", kind))
	}
}

func encodeMessage(kind string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{"type": kind, "payload": payload})
}

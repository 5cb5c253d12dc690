package main

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// itemsChanged is broadcast after every successful mutation.
type itemsChanged struct {
	Type string `json:"type"`
	Op   string `json:"op"`
	ID   string `json:"id"`
	At   int64  `json:"at"`
}

// eventHub fans items_changed events out to subscribed clients.
type eventHub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	send chan []byte
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		logger:  logger,
		clients: make(map[*eventClient]struct{}),
	}
}

func (h *eventHub) register() *eventClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	client := &eventClient{send: make(chan []byte, 16)}
	if h.closed {
		close(client.send)
		return client
	}
	h.clients[client] = struct{}{}
	return client
}

func (h *eventHub) unregister(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *eventHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *eventHub) publish(op, id string) {
	h.broadcast(itemsChanged{Type: "items_changed", Op: op, ID: id, At: time.Now().UnixMilli()})
}

func (h *eventHub) broadcast(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal error", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping event for slow client")
		}
	}
}

// close ends every subscription; later registrations get a closed channel.
func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

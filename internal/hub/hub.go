package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is a change notification for one room.
type Event struct {
	Type    string `json:"type"`
	Code    string `json:"roomCode"`
	Version int64  `json:"version"`
}

const (
	EventUpdated = "room_updated"
	EventDeleted = "room_deleted"
)

// Client is a subscriber channel. The hub never blocks on it.
type Client chan []byte

// Hub fans out room change notifications to waiting pollers.
type Hub struct {
	rooms map[string]map[Client]bool
	mu    sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[Client]bool),
	}
}

// Subscribe adds a client to a room's subscriber set.
func (h *Hub) Subscribe(code string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[code]; !ok {
		h.rooms[code] = make(map[Client]bool)
	}
	h.rooms[code][client] = true
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(code string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[code]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client)
			if len(clients) == 0 {
				delete(h.rooms, code)
			}
		}
	}
}

// Broadcast sends an event to every subscriber of the room.
func (h *Hub) Broadcast(code string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[code]
	if !ok {
		return
	}
	messageBytes, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("Failed to encode hub event")
		return
	}
	for client := range clients {
		// A full channel already holds a pending wakeup.
		select {
		case client <- messageBytes:
		default:
		}
	}
}

// Publish announces that a room reached a new version.
func (h *Hub) Publish(code string, version int64) {
	h.Broadcast(code, Event{Type: EventUpdated, Code: code, Version: version})
}

// PublishDeleted announces that a room no longer exists.
func (h *Hub) PublishDeleted(code string) {
	h.Broadcast(code, Event{Type: EventDeleted, Code: code})
}

// Subscribers reports how many clients wait on a room.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// Waiter is a single-use subscription for long polling.
type Waiter struct {
	hub    *Hub
	code   string
	client Client
	once   sync.Once
}

// Watch subscribes before the caller checks the current version so no
// change between the check and the wait can be missed.
func (h *Hub) Watch(code string) *Waiter {
	w := &Waiter{hub: h, code: code, client: make(Client, 1)}
	h.Subscribe(code, w.client)
	return w
}

// Wait blocks until the room changes or ctx is done. It reports whether a
// change was observed.
func (w *Waiter) Wait(ctx context.Context) bool {
	select {
	case msg, ok := <-w.client:
		return ok && msg != nil
	case <-ctx.Done():
		return false
	}
}

// Close releases the subscription. It is safe to call more than once.
func (w *Waiter) Close() {
	w.once.Do(func() { w.hub.Unsubscribe(w.code, w.client) })
}

package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"live-quiz-service/internal/domain"
)

// Hub tracks which local connections are subscribed to which room. It is a
// cache of this process only; session state always comes from the store.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*client]struct{}),
		logger: logger,
	}
}

// join moves c into the room of pin; a connection belongs to one room at a time.
func (h *Hub) join(c *client, pin string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.room == pin {
		return
	}
	h.removeLocked(c)
	if h.rooms[pin] == nil {
		h.rooms[pin] = make(map[*client]struct{})
	}
	h.rooms[pin][c] = struct{}{}
	c.room = pin
	h.logger.Debug("client joined room", "pin", pin, "client", c.id, "members", len(h.rooms[pin]))
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Deliver writes event to every local member of the room of pin. The event is
// encoded once for all members.
func (h *Hub) Deliver(pin string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", "event", event.Type, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[pin] {
		c.enqueue(data)
	}
}

// RoomSize returns the number of local connections in the room of pin.
func (h *Hub) RoomSize(pin string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pin])
}

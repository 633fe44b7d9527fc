package registry

import (
	"context"
	"encoding/json"
	"sync"

	"talkroom/internal/core/contracts"
	"talkroom/internal/core/domain"
)

// Registry is the in-process room broadcaster. It tracks which connections
// are live and which room each one is subscribed to, and delivers events to
// a room's current subscriber set. A connection holds at most one room
// subscription; subscribing to a new room leaves the old one in the same
// critical section, so no reader ever observes a connection in two rooms.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]contracts.Client            // connection_id → client
	rooms   map[string]map[string]contracts.Client // room_id → connection_id → client
	roomOf  map[string]string                      // connection_id → room_id
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]contracts.Client),
		rooms:   make(map[string]map[string]contracts.Client),
		roomOf:  make(map[string]string),
	}
}

func (h *Registry) Register(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ConnectionID()] = c
}

func (h *Registry) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID)
	delete(h.clients, connID)
}

func (h *Registry) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	h.leaveLocked(connID)
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]contracts.Client)
	}
	h.rooms[roomID][connID] = c
	h.roomOf[connID] = roomID
}

// Unsubscribe drops the connection's subscription to roomID if it holds one
// and reports whether the room is left with no subscribers.
func (h *Registry) Unsubscribe(connID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.roomOf[connID] == roomID {
		h.leaveLocked(connID)
	}
	return len(h.rooms[roomID]) == 0
}

// UnsubscribeAll is the disconnect primitive: it drops whatever subscription
// the connection holds and reports the departed room and whether it emptied.
func (h *Registry) UnsubscribeAll(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, ok := h.roomOf[connID]
	if !ok {
		return "", false
	}
	h.leaveLocked(connID)
	return roomID, len(h.rooms[roomID]) == 0
}

func (h *Registry) RoomOf(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomID, ok := h.roomOf[connID]
	return roomID, ok
}

// leaveLocked removes the connection from its current room, if any.
// Callers must hold h.mu.
func (h *Registry) leaveLocked(connID string) {
	roomID, ok := h.roomOf[connID]
	if !ok {
		return
	}
	delete(h.rooms[roomID], connID)
	delete(h.roomOf, connID)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
}

// Publish delivers the event to every connection currently subscribed to the
// room, the sender's own connection included. A failed send to one subscriber
// is dropped there; the rest still get the event.
func (h *Registry) Publish(ctx context.Context, roomID string, event domain.OutboundEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, _ := json.Marshal(event)
	for _, c := range h.rooms[roomID] {
		_ = c.Send(ctx, data)
	}
}

// SendTo targets a single connection, used for direct replies such as the
// history replay after a join.
func (h *Registry) SendTo(ctx context.Context, connID string, event domain.OutboundEvent) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	data, _ := json.Marshal(event)
	_ = c.Send(ctx, data)
}

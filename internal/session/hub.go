package session

import (
	"sync"

	"collabhub/internal/models"
)

// roomKeyPrefix namespaces room keys derived from external document ids.
const roomKeyPrefix = "collab:"

// RoomKey derives the broadcast-group key for a document id.
func RoomKey(appID string) string { return roomKeyPrefix + appID }

// Hub manages all active collaboration rooms.
//
// Join and Leave run under the hub lock so that the membership cascade is
// atomic: a connection can never join a room that a concurrent disconnect
// is about to delete, and a room is only deleted while provably empty.
// Lock order is always hub then room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*Room)} }

// Join resolves or lazily creates the room and registers the connection in
// one critical section.
func (h *Hub) Join(key string, c *Client, user models.PresenceUser) (*Room, models.PresenceUser) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[key]
	if !ok {
		r = NewRoom(key)
		h.rooms[key] = r
	}
	merged := r.Join(c, user)
	return r, merged
}

// Leave removes the connection from its room and, when that was the room's
// last connection, drops the room's bookkeeping entirely so an idle process
// does not accumulate empty rooms. The registry entry is only removed when
// it still points at this room instance.
func (h *Hub) Leave(room *Room, c *Client) (userID string, userGone bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID, userGone, empty := room.Leave(c)
	if empty && h.rooms[room.Key] == room {
		delete(h.rooms, room.Key)
	}
	return userID, userGone
}

func (h *Hub) GetOrCreate(key string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[key]; ok {
		return r
	}
	r := NewRoom(key)
	h.rooms[key] = r
	return r
}

func (h *Hub) Get(key string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[key]
	return r, ok
}

// Delete force-drops a room, regardless of membership. Used when the
// backing document is gone; normal cleanup goes through Leave.
func (h *Hub) Delete(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, key)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

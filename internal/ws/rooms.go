package ws

import "sync"

// RoomRegistry maps room names to member connection ids. Rooms hold
// membership only, never socket handles; they are created lazily on first
// join and destroyed when the last member leaves.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewRoomRegistry creates an empty RoomRegistry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]map[string]struct{})}
}

// Join adds a connection id to a room, creating the room if needed, and
// returns the resulting member count. Joining a room twice is a no-op.
func (r *RoomRegistry) Join(room, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
	return len(members)
}

// Leave removes a connection id from a room, deleting the room entirely once
// its member set is empty. Leaving a room the connection never joined is a
// no-op.
func (r *RoomRegistry) Leave(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns a snapshot of the member ids of a room. Returns an empty
// slice for an unknown room.
func (r *RoomRegistry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Size returns the member count of a room, zero for an unknown room.
func (r *RoomRegistry) Size(room string) int {
	r.mu.RLock()
	n := len(r.rooms[room])
	r.mu.RUnlock()
	return n
}

// Exists reports whether a room currently has any members.
func (r *RoomRegistry) Exists(room string) bool {
	r.mu.RLock()
	_, ok := r.rooms[room]
	r.mu.RUnlock()
	return ok
}

// Count returns the number of active rooms.
func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	n := len(r.rooms)
	r.mu.RUnlock()
	return n
}

// Names returns a snapshot of all active room names.
func (r *RoomRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

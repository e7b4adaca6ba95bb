package signaling

import (
	"sort"
	"sync"
)

// Registry maps room ids to the set of connections that joined them. It is
// safe for concurrent use; every operation holds the registry lock for its
// whole duration, so operations on the same room are linearizable.
type Registry struct {
	mu sync.RWMutex

	// rooms maps a room id to its member set.
	rooms map[string]map[ConnID]struct{}

	// memberships is the reverse index used by Leave.
	memberships map[ConnID]map[string]struct{}
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID      string `json:"roomId"`
	Members int    `json:"members"`
}

// Departure describes what Leave changed.
type Departure struct {
	// Rooms the connection was removed from.
	Rooms []string
	// Deleted is the subset of Rooms that became empty and were discarded.
	Deleted []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]map[ConnID]struct{}),
		memberships: make(map[ConnID]map[string]struct{}),
	}
}

// CreateOrJoin adds conn to roomID, creating the room if needed. It reports
// whether the room was created by this call. Joining twice is a no-op.
func (r *Registry) CreateOrJoin(roomID string, conn ConnID) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[roomID] = members
		created = true
	}
	members[conn] = struct{}{}

	joined, ok := r.memberships[conn]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[conn] = joined
	}
	joined[roomID] = struct{}{}

	return created
}

// Members returns a snapshot of the connections in roomID. Unknown rooms
// yield an empty slice.
func (r *Registry) Members(roomID string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]ConnID, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// Leave removes conn from every room it belongs to and deletes rooms left
// empty. Calling it for an unknown connection does nothing.
func (r *Registry) Leave(conn ConnID) Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dep Departure
	for roomID := range r.memberships[conn] {
		dep.Rooms = append(dep.Rooms, roomID)

		members := r.rooms[roomID]
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, roomID)
			dep.Deleted = append(dep.Deleted, roomID)
		}
	}
	delete(r.memberships, conn)

	return dep
}

// Rooms returns every room with its member count, ordered by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, RoomInfo{ID: id, Members: len(members)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Package relay routes chat events between live connections grouped in rooms
// named after user ids.
package relay

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Member is a live connection that can receive frames.
type Member interface {
	// Enqueue hands data to the connection without blocking.
	Enqueue(data []byte) bool
}

// Registry maps rooms to their members. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]map[Member]struct{}
	memberships map[Member]map[string]struct{}
	bus         Bus
	log         *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]map[Member]struct{}),
		memberships: make(map[Member]map[string]struct{}),
		bus:         LocalBus{},
		log:         log,
	}
}

// SetBus attaches a cross-node bus. Call before serving connections.
func (r *Registry) SetBus(b Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = b
}

// Join adds m to room. It reports false for an empty room name or when m is
// already a member; neither case has side effects.
func (r *Registry) Join(m Member, room string) bool {
	if room == "" {
		return false
	}
	r.mu.Lock()
	if _, ok := r.rooms[room][m]; ok {
		r.mu.Unlock()
		return false
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[Member]struct{})
	}
	r.rooms[room][m] = struct{}{}
	if r.memberships[m] == nil {
		r.memberships[m] = make(map[string]struct{})
	}
	r.memberships[m][room] = struct{}{}
	bus := r.bus
	r.mu.Unlock()

	if err := bus.Acquire(room); err != nil {
		r.log.Warn("bus subscription failed", "room", room, "error", err)
	}
	return true
}

// Leave removes m from every room and returns the rooms it left.
// Safe to call repeatedly and for members that never joined.
func (r *Registry) Leave(m Member) []string {
	r.mu.Lock()
	rooms := lo.Keys(r.memberships[m])
	for _, room := range rooms {
		delete(r.rooms[room], m)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.memberships, m)
	bus := r.bus
	r.mu.Unlock()

	for _, room := range rooms {
		bus.Release(room)
	}
	return rooms
}

// Publish delivers data to every member of room, here and on other nodes.
// An empty room is a silent no-op. It returns the local delivery count.
func (r *Registry) Publish(room string, data []byte) int {
	return r.PublishAll([]string{room}, data)
}

// PublishAll delivers data once to every member of any of rooms.
func (r *Registry) PublishAll(rooms []string, data []byte) int {
	rooms = lo.Uniq(lo.Compact(rooms))
	delivered := r.deliver(rooms, data)

	if len(rooms) == 0 {
		return delivered
	}
	r.mu.RLock()
	bus := r.bus
	r.mu.RUnlock()
	if err := bus.Broadcast(rooms, data); err != nil {
		r.log.Warn("bus broadcast failed", "rooms", rooms, "error", err)
	}
	return delivered
}

// DeliverLocal delivers data to the members of room on this node only,
// skipping members of any room in except.
func (r *Registry) DeliverLocal(room string, except []string, data []byte) int {
	r.mu.RLock()
	targets := make([]Member, 0, len(r.rooms[room]))
	for m := range r.rooms[room] {
		skip := false
		for _, other := range except {
			if _, ok := r.memberships[m][other]; ok {
				skip = true
				break
			}
		}
		if !skip {
			targets = append(targets, m)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.Enqueue(data) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) deliver(rooms []string, data []byte) int {
	r.mu.RLock()
	targets := make(map[Member]struct{})
	for _, room := range rooms {
		for m := range r.rooms[room] {
			targets[m] = struct{}{}
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for m := range targets {
		if m.Enqueue(data) {
			delivered++
		}
	}
	return delivered
}

// Rooms lists the rooms m belongs to.
func (r *Registry) Rooms(m Member) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.memberships[m])
}

// Size is the number of members in room.
func (r *Registry) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RoomCount is the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

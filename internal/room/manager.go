// Package room maintains the transient membership sets for chat rooms and
// provides the broadcast primitive. Conversation rooms ("conv:<id>") and
// community rooms ("community:<id>") share the same abstraction; durable
// community membership is owned elsewhere — a room only knows which sessions
// are currently connected to it.
package room

import (
	"log"
	"sync"

	"github.com/orbitverse/chat-core/internal/protocol"
	"github.com/orbitverse/chat-core/internal/registry"
)

// Watcher is notified when a room gains its first local occupant and when it
// loses its last one. Used by the cross-instance relay to manage per-room
// subscriptions.
type Watcher interface {
	RoomActive(roomID string)
	RoomIdle(roomID string)
}

// Manager is a goroutine-safe map of room id -> joined sessions.
type Manager struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]*registry.Session // room id -> session id -> session
	watcher Watcher
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]map[string]*registry.Session),
	}
}

// SetWatcher registers the occupancy-edge watcher. Must be called before the
// first Join.
func (m *Manager) SetWatcher(w Watcher) {
	m.watcher = w
}

// Join adds a session to a room. Joining a room the session already occupies
// is a no-op.
func (m *Manager) Join(roomID string, sess *registry.Session) {
	m.mu.Lock()
	set, ok := m.rooms[roomID]
	if !ok {
		set = make(map[string]*registry.Session)
		m.rooms[roomID] = set
	}
	first := len(set) == 0
	set[sess.ID] = sess
	m.mu.Unlock()

	if first && m.watcher != nil {
		m.watcher.RoomActive(roomID)
	}
}

// Leave removes a session from a room. Leaving a room the session never
// joined is a no-op.
func (m *Manager) Leave(roomID, sessionID string) {
	m.mu.Lock()
	set, ok := m.rooms[roomID]
	if ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.rooms, roomID)
		}
	}
	idle := ok && len(set) == 0
	m.mu.Unlock()

	if idle && m.watcher != nil {
		m.watcher.RoomIdle(roomID)
	}
}

// LeaveAll removes the session from every room it occupies and returns the
// ids of the rooms it was removed from.
func (m *Manager) LeaveAll(sessionID string) []string {
	m.mu.Lock()
	var left []string
	var idle []string
	for roomID, set := range m.rooms {
		if _, ok := set[sessionID]; !ok {
			continue
		}
		delete(set, sessionID)
		left = append(left, roomID)
		if len(set) == 0 {
			delete(m.rooms, roomID)
			idle = append(idle, roomID)
		}
	}
	m.mu.Unlock()

	if m.watcher != nil {
		for _, roomID := range idle {
			m.watcher.RoomIdle(roomID)
		}
	}
	return left
}

// InRoom reports whether the session is currently joined to the room.
func (m *Manager) InRoom(roomID, sessionID string) bool {
	m.mu.RLock()
	_, ok := m.rooms[roomID][sessionID]
	m.mu.RUnlock()
	return ok
}

// Occupants returns a snapshot of the sessions currently joined to the room.
func (m *Manager) Occupants(roomID string) []*registry.Session {
	m.mu.RLock()
	set := m.rooms[roomID]
	out := make([]*registry.Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	m.mu.RUnlock()
	return out
}

// OccupantUsers returns the distinct user ids with at least one session in
// the room.
func (m *Manager) OccupantUsers(roomID string) []string {
	m.mu.RLock()
	seen := make(map[string]struct{})
	for _, s := range m.rooms[roomID] {
		seen[s.UserID] = struct{}{}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	return out
}

// Rooms returns the number of rooms with at least one local occupant.
func (m *Manager) Rooms() int {
	m.mu.RLock()
	n := len(m.rooms)
	m.mu.RUnlock()
	return n
}

// Broadcast delivers event+payload to every session currently joined to the
// room, except sessions belonging to excludeUser (pass "" to exclude no one).
// Delivery is best-effort; write failures are logged and the connection is
// left for the heartbeat to reap.
func (m *Manager) Broadcast(roomID, event string, payload interface{}, excludeUser string) {
	sessions := m.Occupants(roomID)
	if len(sessions) == 0 {
		return
	}

	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("room: encode %s for room=%s: %v", event, roomID, err)
		return
	}
	for _, s := range sessions {
		if excludeUser != "" && s.UserID == excludeUser {
			continue
		}
		if err := s.Conn.WriteMessage(data); err != nil {
			log.Printf("room: send %s to session=%s: %v", event, s.ID, err)
		}
	}
}

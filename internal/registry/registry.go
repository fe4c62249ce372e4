// Package registry tracks which users are reachable right now. It maps each
// authenticated user to the set of live sessions (multi-device), and fans
// server events out to every session of a user. The registry is purely
// in-memory: it is a derived cache of connectivity, rebuilt from zero on
// process restart, and is never recovered from persisted state.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/orbitverse/chat-core/internal/protocol"
)

// Writer delivers one encoded frame to a live connection. *ws.Connection
// satisfies it; tests substitute an in-memory recorder.
type Writer interface {
	WriteMessage(data []byte) error
}

// Session binds one connection to one authenticated user.
type Session struct {
	ID          string // connection id (UUID)
	UserID      string
	Username    string
	Conn        Writer
	ConnectedAt time.Time
}

// Send encodes event+payload as a server message and writes it to the
// session's connection.
func (s *Session) Send(event string, payload interface{}) error {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		return err
	}
	return s.Conn.WriteMessage(data)
}

// Watcher is notified on user connectivity edges: when a user's first
// session registers and when their last session unregisters. Used by the
// cross-instance relay to manage per-user subscriptions.
type Watcher interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

// Registry is a goroutine-safe map of user id -> live sessions. It is an
// explicit value with its own lifecycle, not a package-level singleton, so
// each server (and each test) instantiates a fresh one.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]map[string]*Session // user id -> session id -> session
	byID    map[string]*Session            // session id -> session
	watcher Watcher
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Session),
		byID:   make(map[string]*Session),
	}
}

// SetWatcher registers the connectivity-edge watcher. Must be called before
// the first Register.
func (r *Registry) SetWatcher(w Watcher) {
	r.watcher = w
}

// Register adds a session to its user's session set. Registering the same
// session id twice overwrites the previous entry.
func (r *Registry) Register(sess *Session) {
	r.mu.Lock()
	set, ok := r.byUser[sess.UserID]
	if !ok {
		set = make(map[string]*Session)
		r.byUser[sess.UserID] = set
	}
	first := len(set) == 0
	set[sess.ID] = sess
	r.byID[sess.ID] = sess
	r.mu.Unlock()

	if first && r.watcher != nil {
		r.watcher.UserOnline(sess.UserID)
	}
}

// Unregister removes a session. It returns the number of sessions the user
// still has; zero means the user is now offline.
func (r *Registry) Unregister(userID, sessionID string) int {
	r.mu.Lock()
	delete(r.byID, sessionID)
	remaining := 0
	if set, ok := r.byUser[userID]; ok {
		delete(set, sessionID)
		remaining = len(set)
		if remaining == 0 {
			delete(r.byUser, userID)
		}
	}
	r.mu.Unlock()

	if remaining == 0 && r.watcher != nil {
		r.watcher.UserOffline(userID)
	}
	return remaining
}

// Get returns the session for the given session id, or nil.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.RLock()
	s := r.byID[sessionID]
	r.mu.RUnlock()
	return s
}

// SessionsOf returns a snapshot of the user's live sessions.
func (r *Registry) SessionsOf(userID string) []*Session {
	r.mu.RLock()
	set := r.byUser[userID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}

// IsOnline reports whether the user has at least one live session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	_, ok := r.byUser[userID]
	r.mu.RUnlock()
	return ok
}

// SendToUser fans event+payload out to every session of the user. Delivery is
// best-effort: if the user is offline this is a no-op, not an error, and
// individual write failures are logged and skipped — failed connections are
// reaped by the heartbeat.
func (r *Registry) SendToUser(userID, event string, payload interface{}) {
	sessions := r.SessionsOf(userID)
	if len(sessions) == 0 {
		return
	}

	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("registry: encode %s for user=%s: %v", event, userID, err)
		return
	}
	for _, s := range sessions {
		if err := s.Conn.WriteMessage(data); err != nil {
			log.Printf("registry: send %s to session=%s: %v", event, s.ID, err)
		}
	}
}

// Users returns the number of distinct online users.
func (r *Registry) Users() int {
	r.mu.RLock()
	n := len(r.byUser)
	r.mu.RUnlock()
	return n
}

// Sessions returns the total number of live sessions.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}

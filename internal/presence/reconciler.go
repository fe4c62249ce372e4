package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/orbitverse/chat-core/internal/protocol"
	"github.com/orbitverse/chat-core/internal/registry"
	"github.com/orbitverse/chat-core/internal/room"
)

// DefaultOfflineGrace is how long a user with zero live sessions stays
// PendingOffline before the reconciler finalizes them as Offline. A
// reconnect inside the window cancels finalization entirely.
const DefaultOfflineGrace = 30 * time.Second

// UserStatus is the reconciler's view of a user.
type UserStatus int

const (
	// StatusOnline means at least one live session exists.
	StatusOnline UserStatus = iota
	// StatusPendingOffline means the last session evicted and the grace
	// timer is running.
	StatusPendingOffline
	// StatusOffline means the grace window elapsed with no reconnect.
	StatusOffline
)

func (s UserStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusPendingOffline:
		return "pending_offline"
	default:
		return "offline"
	}
}

// ParticipantStore persists the durable offline side effect.
type ParticipantStore interface {
	MarkParticipantInactive(ctx context.Context, userID string) error
}

// Reconciler walks evicted sessions through eviction, pending-offline, and
// offline. Eviction side effects (room departure broadcasts, typing
// cleanup) happen immediately; the durable offline write is debounced by
// the grace window so transient reconnects cost nothing. Departure events
// go out through the injected Broadcaster, so when that is the relay,
// occupants on other instances see them too.
type Reconciler struct {
	registry *registry.Registry
	rooms    *room.Manager
	events   Broadcaster
	typing   *Typing
	store    ParticipantStore
	grace    time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewReconciler creates a reconciler. rooms tracks local occupancy; events
// carries the departure broadcasts. A zero grace selects
// DefaultOfflineGrace. store may be nil, in which case finalization only
// drops in-memory state.
func NewReconciler(reg *registry.Registry, rooms *room.Manager, typing *Typing, events Broadcaster, store ParticipantStore, grace time.Duration) *Reconciler {
	if grace <= 0 {
		grace = DefaultOfflineGrace
	}
	return &Reconciler{
		registry: reg,
		rooms:    rooms,
		events:   events,
		typing:   typing,
		store:    store,
		grace:    grace,
		pending:  make(map[string]*time.Timer),
	}
}

// SessionOpened records a live session and cancels any pending offline
// finalization for its user.
func (r *Reconciler) SessionOpened(sess *registry.Session) {
	r.registry.Register(sess)

	r.mu.Lock()
	if timer, ok := r.pending[sess.UserID]; ok {
		timer.Stop()
		delete(r.pending, sess.UserID)
		log.Printf("presence: user %s reconnected within grace window", sess.UserID)
	}
	r.mu.Unlock()
}

// SessionClosed handles an evicted session: it leaves every joined room
// (broadcasting departure to community rooms), unregisters the session,
// and, if this was the user's last session, clears typing indicators and
// arms the offline grace timer.
func (r *Reconciler) SessionClosed(sess *registry.Session) {
	left := r.rooms.LeaveAll(sess.ID)
	remaining := r.registry.Unregister(sess.UserID, sess.ID)

	// Departure broadcasts only when no other session of the same user
	// still occupies the room.
	for _, roomID := range left {
		if !protocol.IsCommunityRoom(roomID) {
			continue
		}
		if userStillInRoom(r.rooms, roomID, sess.UserID) {
			continue
		}
		r.events.Broadcast(roomID, protocol.EventRoomUserLeft, protocol.RoomPresenceEvent{
			RoomID:   roomID,
			UserID:   sess.UserID,
			Username: sess.Username,
		}, sess.UserID)
	}

	if remaining > 0 {
		return
	}

	r.typing.StopAll(sess.UserID, sess.Username)

	r.mu.Lock()
	if timer, ok := r.pending[sess.UserID]; ok {
		timer.Stop()
	}
	userID := sess.UserID
	r.pending[userID] = time.AfterFunc(r.grace, func() {
		r.finalize(userID)
	})
	r.mu.Unlock()
}

// Status reports the reconciler's current view of a user.
func (r *Reconciler) Status(userID string) UserStatus {
	if r.registry.IsOnline(userID) {
		return StatusOnline
	}
	r.mu.Lock()
	_, pending := r.pending[userID]
	r.mu.Unlock()
	if pending {
		return StatusPendingOffline
	}
	return StatusOffline
}

func (r *Reconciler) finalize(userID string) {
	r.mu.Lock()
	_, ok := r.pending[userID]
	if ok {
		delete(r.pending, userID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	// The timer may race a reconnect that registered before Stop landed.
	if r.registry.IsOnline(userID) {
		return
	}

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.MarkParticipantInactive(ctx, userID); err != nil {
			log.Printf("presence: mark inactive %s: %v", userID, err)
		}
	}
	log.Printf("presence: user %s offline", userID)
}

func userStillInRoom(rooms *room.Manager, roomID, userID string) bool {
	for _, u := range rooms.OccupantUsers(roomID) {
		if u == userID {
			return true
		}
	}
	return false
}

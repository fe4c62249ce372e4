// Package presence owns the ephemeral coordination state around sessions:
// typing indicators with server-enforced auto-expiry, and the disconnect
// reconciler that debounces offline finalization. Nothing in this package
// is persisted or survives a restart; a reconnecting session must re-arm
// its own indicators.
package presence

import (
	"sync"
	"time"

	"github.com/orbitverse/chat-core/internal/protocol"
)

// DefaultTypingTimeout is how long a typing indicator stays armed without a
// refresh before the server broadcasts stopped-typing on the user's behalf.
const DefaultTypingTimeout = 5 * time.Second

// Broadcaster delivers an event to a room, excluding one user's sessions.
type Broadcaster interface {
	Broadcast(roomID, event string, payload interface{}, excludeUser string)
}

// Typing coordinates typing indicators keyed by (room, user).
type Typing struct {
	mu      sync.Mutex
	timers  map[typingKey]*time.Timer
	rooms   Broadcaster
	timeout time.Duration
}

type typingKey struct {
	roomID string
	userID string
}

// NewTyping creates a coordinator broadcasting through rooms. A zero
// timeout selects DefaultTypingTimeout.
func NewTyping(rooms Broadcaster, timeout time.Duration) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{
		timers:  make(map[typingKey]*time.Timer),
		rooms:   rooms,
		timeout: timeout,
	}
}

// Start broadcasts a typing indicator to the room (excluding the typist) and
// arms the auto-stop timer. Calling Start again before the timer fires
// refreshes it without a second broadcast of the started state.
func (t *Typing) Start(roomID, userID, username string) {
	key := typingKey{roomID: roomID, userID: userID}

	t.mu.Lock()
	timer, refreshing := t.timers[key]
	if refreshing {
		timer.Reset(t.timeout)
	} else {
		t.timers[key] = time.AfterFunc(t.timeout, func() {
			t.expire(roomID, userID, username)
		})
	}
	t.mu.Unlock()

	if !refreshing {
		t.rooms.Broadcast(roomID, protocol.EventUserTyping, protocol.TypingEvent{
			RoomID:   roomID,
			UserID:   userID,
			Username: username,
		}, userID)
	}
}

// Stop cancels the timer and broadcasts stopped-typing immediately. Stopping
// an indicator that was never started is a no-op.
func (t *Typing) Stop(roomID, userID, username string) {
	key := typingKey{roomID: roomID, userID: userID}

	t.mu.Lock()
	timer, ok := t.timers[key]
	if ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok {
		t.broadcastStopped(roomID, userID, username)
	}
}

// StopAll clears every indicator a session's user armed. Called by the
// reconciler when the user's last session disappears, so rooms do not show
// a ghost typist for up to the full timeout.
func (t *Typing) StopAll(userID, username string) {
	t.mu.Lock()
	var cleared []typingKey
	for key, timer := range t.timers {
		if key.userID == userID {
			timer.Stop()
			delete(t.timers, key)
			cleared = append(cleared, key)
		}
	}
	t.mu.Unlock()

	for _, key := range cleared {
		t.broadcastStopped(key.roomID, userID, username)
	}
}

// expire fires from the auto-stop timer.
func (t *Typing) expire(roomID, userID, username string) {
	key := typingKey{roomID: roomID, userID: userID}

	t.mu.Lock()
	_, ok := t.timers[key]
	if ok {
		delete(t.timers, key)
	}
	t.mu.Unlock()

	// A concurrent Stop may already have cleared and broadcast.
	if ok {
		t.broadcastStopped(roomID, userID, username)
	}
}

func (t *Typing) broadcastStopped(roomID, userID, username string) {
	t.rooms.Broadcast(roomID, protocol.EventUserStoppedTyping, protocol.TypingEvent{
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
	}, userID)
}

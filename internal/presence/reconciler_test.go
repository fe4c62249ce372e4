package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orbitverse/chat-core/internal/protocol"
	"github.com/orbitverse/chat-core/internal/registry"
	"github.com/orbitverse/chat-core/internal/room"
)

type nullWriter struct{}

func (nullWriter) WriteMessage([]byte) error { return nil }

type fakeParticipants struct {
	mu       sync.Mutex
	inactive []string
}

func (f *fakeParticipants) MarkParticipantInactive(_ context.Context, userID string) error {
	f.mu.Lock()
	f.inactive = append(f.inactive, userID)
	f.mu.Unlock()
	return nil
}

func (f *fakeParticipants) marked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inactive...)
}

type broadcastCall struct {
	roomID  string
	event   string
	exclude string
}

type fakeBroadcast struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeBroadcast) Broadcast(roomID, event string, payload interface{}, excludeUser string) {
	f.mu.Lock()
	f.calls = append(f.calls, broadcastCall{roomID: roomID, event: event, exclude: excludeUser})
	f.mu.Unlock()
}

func (f *fakeBroadcast) byRoom(roomID string) []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcastCall
	for _, c := range f.calls {
		if c.roomID == roomID {
			out = append(out, c)
		}
	}
	return out
}

func newTestReconciler(grace time.Duration) (*Reconciler, *room.Manager, *fakeBroadcast, *fakeParticipants) {
	reg := registry.New()
	rooms := room.NewManager()
	typing := NewTyping(rooms, time.Minute)
	events := &fakeBroadcast{}
	parts := &fakeParticipants{}
	return NewReconciler(reg, rooms, typing, events, parts, grace), rooms, events, parts
}

func session(id, userID string) *registry.Session {
	return &registry.Session{ID: id, UserID: userID, Username: "user-" + userID, Conn: nullWriter{}}
}

func TestReconciler_StatusTransitions(t *testing.T) {
	r, _, _, _ := newTestReconciler(time.Minute)
	sess := session("s1", "u1")

	if got := r.Status("u1"); got != StatusOffline {
		t.Fatalf("initial status = %v, want offline", got)
	}

	r.SessionOpened(sess)
	if got := r.Status("u1"); got != StatusOnline {
		t.Fatalf("status after open = %v, want online", got)
	}

	r.SessionClosed(sess)
	if got := r.Status("u1"); got != StatusPendingOffline {
		t.Fatalf("status after close = %v, want pending_offline", got)
	}
}

func TestReconciler_FinalizeAfterGrace(t *testing.T) {
	r, _, _, parts := newTestReconciler(30 * time.Millisecond)
	sess := session("s1", "u1")

	r.SessionOpened(sess)
	r.SessionClosed(sess)

	deadline := time.After(2 * time.Second)
	for r.Status("u1") != StatusOffline {
		select {
		case <-deadline:
			t.Fatal("user never finalized to offline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	marked := parts.marked()
	if len(marked) != 1 || marked[0] != "u1" {
		t.Errorf("marked inactive = %v, want [u1]", marked)
	}
}

func TestReconciler_ReconnectCancelsFinalize(t *testing.T) {
	r, _, _, parts := newTestReconciler(50 * time.Millisecond)
	s1 := session("s1", "u1")

	r.SessionOpened(s1)
	r.SessionClosed(s1)

	// Reconnect inside the grace window.
	s2 := session("s2", "u1")
	r.SessionOpened(s2)

	if got := r.Status("u1"); got != StatusOnline {
		t.Fatalf("status after reconnect = %v, want online", got)
	}

	time.Sleep(120 * time.Millisecond)
	if got := r.Status("u1"); got != StatusOnline {
		t.Errorf("status after grace elapsed = %v, want still online", got)
	}
	if marked := parts.marked(); len(marked) != 0 {
		t.Errorf("reconnected user marked inactive: %v", marked)
	}
}

func TestReconciler_SecondSessionHoldsOnline(t *testing.T) {
	r, _, _, _ := newTestReconciler(30 * time.Millisecond)
	s1 := session("s1", "u1")
	s2 := session("s2", "u1")

	r.SessionOpened(s1)
	r.SessionOpened(s2)
	r.SessionClosed(s1)

	if got := r.Status("u1"); got != StatusOnline {
		t.Fatalf("status with one session left = %v, want online", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := r.Status("u1"); got != StatusOnline {
		t.Errorf("grace timer armed despite remaining session")
	}
}

func TestReconciler_ClosedSessionLeavesRooms(t *testing.T) {
	r, rooms, _, _ := newTestReconciler(time.Minute)
	sess := session("s1", "u1")

	r.SessionOpened(sess)
	rooms.Join("community:g1", sess)
	rooms.Join("conv:c1", sess)

	r.SessionClosed(sess)

	if rooms.InRoom("community:g1", "s1") || rooms.InRoom("conv:c1", "s1") {
		t.Error("closed session still occupies rooms")
	}
}

func TestReconciler_DepartureUsesInjectedBroadcaster(t *testing.T) {
	r, rooms, events, _ := newTestReconciler(time.Minute)
	sess := session("s1", "u1")

	r.SessionOpened(sess)
	rooms.Join("community:g1", sess)
	rooms.Join("conv:c1", sess)

	r.SessionClosed(sess)

	got := events.byRoom("community:g1")
	if len(got) != 1 {
		t.Fatalf("community departure broadcasts = %d, want 1", len(got))
	}
	if got[0].event != protocol.EventRoomUserLeft {
		t.Errorf("event = %q, want %q", got[0].event, protocol.EventRoomUserLeft)
	}
	if got[0].exclude != "u1" {
		t.Errorf("excluded user = %q, want u1", got[0].exclude)
	}
	if conv := events.byRoom("conv:c1"); len(conv) != 0 {
		t.Errorf("conversation room got %d departure broadcasts, want 0", len(conv))
	}
}

func TestReconciler_NoDepartureWhileSessionRemains(t *testing.T) {
	r, rooms, events, _ := newTestReconciler(time.Minute)
	s1 := session("s1", "u1")
	s2 := session("s2", "u1")

	r.SessionOpened(s1)
	r.SessionOpened(s2)
	rooms.Join("community:g1", s1)
	rooms.Join("community:g1", s2)

	r.SessionClosed(s1)
	if got := events.byRoom("community:g1"); len(got) != 0 {
		t.Fatalf("departure broadcast with a session still in the room: %v", got)
	}

	r.SessionClosed(s2)
	if got := events.byRoom("community:g1"); len(got) != 1 {
		t.Fatalf("departure broadcasts after last session closed = %d, want 1", len(got))
	}
}

func TestUserStatus_String(t *testing.T) {
	tests := []struct {
		status UserStatus
		want   string
	}{
		{StatusOnline, "online"},
		{StatusPendingOffline, "pending_offline"},
		{StatusOffline, "offline"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

package registry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// recorder is an in-memory Writer capturing every frame written to it.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recorder) WriteMessage(data []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, data)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func newSession(id, userID string) (*Session, *recorder) {
	rec := &recorder{}
	return &Session{
		ID:          id,
		UserID:      userID,
		Username:    "user-" + userID,
		Conn:        rec,
		ConnectedAt: time.Now(),
	}, rec
}

func TestRegisterAndLookup(t *testing.T) {
	reg := New()
	s1, _ := newSession("s1", "u1")
	s2, _ := newSession("s2", "u1")

	reg.Register(s1)
	reg.Register(s2)

	if !reg.IsOnline("u1") {
		t.Error("u1 should be online")
	}
	if reg.IsOnline("u2") {
		t.Error("u2 should not be online")
	}
	if got := reg.Get("s1"); got != s1 {
		t.Error("Get(s1) did not return the registered session")
	}
	if got := len(reg.SessionsOf("u1")); got != 2 {
		t.Errorf("SessionsOf(u1) = %d sessions, want 2", got)
	}
	if reg.Users() != 1 {
		t.Errorf("Users() = %d, want 1", reg.Users())
	}
	if reg.Sessions() != 2 {
		t.Errorf("Sessions() = %d, want 2", reg.Sessions())
	}
}

func TestSendToUser_AllSessions(t *testing.T) {
	reg := New()
	s1, rec1 := newSession("s1", "u1")
	s2, rec2 := newSession("s2", "u1")
	s3, rec3 := newSession("s3", "u2")
	reg.Register(s1)
	reg.Register(s2)
	reg.Register(s3)

	reg.SendToUser("u1", "conversation.updated", map[string]string{"conversation_id": "c1"})

	if rec1.count() != 1 || rec2.count() != 1 {
		t.Errorf("u1 sessions got %d and %d frames, want 1 each", rec1.count(), rec2.count())
	}
	if rec3.count() != 0 {
		t.Errorf("u2 session got %d frames, want 0", rec3.count())
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec1.frames[0], &decoded); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if decoded["type"] != "conversation.updated" {
		t.Errorf("frame type = %v", decoded["type"])
	}
}

func TestSendToUser_OfflineNoop(t *testing.T) {
	reg := New()
	// Must not panic or error: delivery to an offline user is a no-op.
	reg.SendToUser("ghost", "conversation.updated", map[string]string{})
}

func TestUnregister(t *testing.T) {
	reg := New()
	s1, _ := newSession("s1", "u1")
	s2, _ := newSession("s2", "u1")
	reg.Register(s1)
	reg.Register(s2)

	if remaining := reg.Unregister("u1", "s1"); remaining != 1 {
		t.Errorf("Unregister(s1) remaining = %d, want 1", remaining)
	}
	if !reg.IsOnline("u1") {
		t.Error("u1 should still be online with one session left")
	}
	if remaining := reg.Unregister("u1", "s2"); remaining != 0 {
		t.Errorf("Unregister(s2) remaining = %d, want 0", remaining)
	}
	if reg.IsOnline("u1") {
		t.Error("u1 should be offline")
	}
	if reg.Get("s1") != nil {
		t.Error("Get(s1) should be nil after unregister")
	}
}

type edgeWatcher struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (w *edgeWatcher) UserOnline(userID string) {
	w.mu.Lock()
	w.online = append(w.online, userID)
	w.mu.Unlock()
}

func (w *edgeWatcher) UserOffline(userID string) {
	w.mu.Lock()
	w.offline = append(w.offline, userID)
	w.mu.Unlock()
}

func TestWatcherEdges(t *testing.T) {
	reg := New()
	w := &edgeWatcher{}
	reg.SetWatcher(w)

	s1, _ := newSession("s1", "u1")
	s2, _ := newSession("s2", "u1")

	reg.Register(s1)
	reg.Register(s2) // second session: no new edge
	if len(w.online) != 1 || w.online[0] != "u1" {
		t.Errorf("online edges = %v, want [u1]", w.online)
	}

	reg.Unregister("u1", "s1") // one session remains: no edge
	if len(w.offline) != 0 {
		t.Errorf("offline edges = %v, want none yet", w.offline)
	}
	reg.Unregister("u1", "s2")
	if len(w.offline) != 1 || w.offline[0] != "u1" {
		t.Errorf("offline edges = %v, want [u1]", w.offline)
	}
}

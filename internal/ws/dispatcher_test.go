package ws

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/orbitverse/chat-core/internal/protocol"
)

// dispatchConn builds a Connection over one end of a net.Pipe and returns
// the peer end for reading the frames the dispatcher writes back.
func dispatchConn(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	conn := &Connection{ID: "s1", UserID: "u1", Conn: server, LastPing: time.Now()}
	return conn, client
}

// readReply reads one text frame from the peer end and decodes its type.
func readReply(t *testing.T, client net.Conn) (string, []byte) {
	t.Helper()
	type reply struct {
		data []byte
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		data, err := wsutil.ReadServerText(client)
		ch <- reply{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read reply: %v", r.err)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r.data, &env); err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		return env.Type, r.data
	case <-time.After(time.Second):
		t.Fatal("no reply frame written")
		return "", nil
	}
}

func TestDispatch_RoutesToRegisteredHandler(t *testing.T) {
	d := NewMessageDispatcher()
	conn, _ := dispatchConn(t)

	handled := make(chan interface{}, 1)
	d.Register(protocol.TypeOpenConversation, func(c *Connection, msg interface{}) {
		handled <- msg
	})

	d.Dispatch(conn, []byte(`{"type":"open_conversation","recipient_id":"u2"}`))

	select {
	case msg := <-handled:
		m, ok := msg.(protocol.OpenConversationMsg)
		if !ok {
			t.Fatalf("handler got %T, want OpenConversationMsg", msg)
		}
		if m.RecipientID != "u2" {
			t.Errorf("RecipientID = %q, want u2", m.RecipientID)
		}
	case <-time.After(time.Second):
		t.Fatal("registered handler never invoked")
	}
}

func TestDispatch_PingBuiltin(t *testing.T) {
	d := NewMessageDispatcher()
	conn, client := dispatchConn(t)
	conn.LastPing = time.Now().Add(-time.Minute)

	go d.Dispatch(conn, []byte(`{"type":"ping"}`))

	event, _ := readReply(t, client)
	if event != protocol.EventPong {
		t.Errorf("reply type = %q, want %q", event, protocol.EventPong)
	}
	if time.Since(conn.LastPing) > 10*time.Second {
		t.Error("LastPing not refreshed by ping")
	}
}

func TestDispatch_UnregisteredType(t *testing.T) {
	d := NewMessageDispatcher()
	conn, client := dispatchConn(t)

	// open_conversation is a known type but nothing is registered for it.
	go d.Dispatch(conn, []byte(`{"type":"open_conversation","peer_id":"u2"}`))

	event, data := readReply(t, client)
	if event != protocol.EventError {
		t.Fatalf("reply type = %q, want %q", event, protocol.EventError)
	}
	var errMsg protocol.ErrorMsg
	if err := json.Unmarshal(data, &errMsg); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errMsg.Code != protocol.ReasonValidation {
		t.Errorf("error code = %q, want %q", errMsg.Code, protocol.ReasonValidation)
	}
}

func TestDispatch_MalformedFrame(t *testing.T) {
	d := NewMessageDispatcher()
	conn, client := dispatchConn(t)

	go d.Dispatch(conn, []byte(`not json`))

	event, data := readReply(t, client)
	if event != protocol.EventError {
		t.Fatalf("reply type = %q, want %q", event, protocol.EventError)
	}
	var errMsg protocol.ErrorMsg
	if err := json.Unmarshal(data, &errMsg); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errMsg.Code != protocol.ReasonValidation {
		t.Errorf("error code = %q, want %q", errMsg.Code, protocol.ReasonValidation)
	}
}

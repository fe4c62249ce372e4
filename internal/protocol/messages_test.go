package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
		wantErr  bool
	}{
		{
			name:     "open conversation",
			data:     `{"type":"open_conversation","recipient_id":"u2"}`,
			wantType: TypeOpenConversation,
		},
		{
			name:     "send message",
			data:     `{"type":"send_message","conversation_id":"c1","content":"hi"}`,
			wantType: TypeSendMessage,
		},
		{
			name:     "send community message",
			data:     `{"type":"send_community_message","community_id":"g1","content":"hi"}`,
			wantType: TypeSendCommunityMessage,
		},
		{
			name:     "mute user",
			data:     `{"type":"mute_user","community_id":"g1","user_id":"u9","duration_sec":300}`,
			wantType: TypeMuteUser,
		},
		{
			name:     "ping",
			data:     `{"type":"ping"}`,
			wantType: TypePing,
		},
		{
			name:    "unknown type",
			data:    `{"type":"bogus"}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			data:    `{"content":"hi"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `hello`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClientMessage error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msgType != tt.wantType {
				t.Errorf("type = %q, want %q", msgType, tt.wantType)
			}
			if msg == nil {
				t.Error("parsed message is nil")
			}
		})
	}
}

func TestParseClientMessage_PayloadFields(t *testing.T) {
	data := `{"type":"send_message","conversation_id":"c1","content":"hello","reply_to_id":"m7"}`
	msgType, msg, err := ParseClientMessage([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("type = %q, want %q", msgType, TypeSendMessage)
	}
	sendMsg, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("msg is %T, want SendMessageMsg", msg)
	}
	if sendMsg.ConversationID != "c1" || sendMsg.Content != "hello" || sendMsg.ReplyToID != "m7" {
		t.Errorf("unexpected payload: %+v", sendMsg)
	}
}

func TestNewServerMessage(t *testing.T) {
	data, err := NewServerMessage(EventMessageAck, AckMsg{
		MessageID:      "m1",
		ConversationID: "c1",
		CreatedAt:      1700000000,
	})
	if err != nil {
		t.Fatalf("NewServerMessage error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != EventMessageAck {
		t.Errorf("type = %v, want %q", decoded["type"], EventMessageAck)
	}
	if decoded["message_id"] != "m1" {
		t.Errorf("message_id = %v, want m1", decoded["message_id"])
	}
}

func TestNewServerMessage_RawPayload(t *testing.T) {
	// The relay hands payloads through as raw JSON; the type still gets
	// injected.
	raw := json.RawMessage(`{"room_id":"community:g1","user_id":"u1"}`)
	data, err := NewServerMessage(EventUserTyping, raw)
	if err != nil {
		t.Fatalf("NewServerMessage error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != EventUserTyping || decoded["room_id"] != "community:g1" {
		t.Errorf("unexpected output: %v", decoded)
	}
}

func TestRoomHelpers(t *testing.T) {
	if got := ConversationRoom("c1"); got != "conv:c1" {
		t.Errorf("ConversationRoom = %q", got)
	}
	if got := CommunityRoom("g1"); got != "community:g1" {
		t.Errorf("CommunityRoom = %q", got)
	}
	if !IsCommunityRoom("community:g1") {
		t.Error("IsCommunityRoom(community:g1) = false")
	}
	if IsCommunityRoom("conv:c1") {
		t.Error("IsCommunityRoom(conv:c1) = true")
	}
	if got := RoomSuffix("conv:c1"); got != "c1" {
		t.Errorf("RoomSuffix(conv:c1) = %q", got)
	}
	if got := RoomSuffix("bare"); got != "bare" {
		t.Errorf("RoomSuffix(bare) = %q", got)
	}
}

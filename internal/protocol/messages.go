// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeOpenConversation     = "open_conversation"
	TypeJoinConversation     = "join_conversation"
	TypeLeaveConversation    = "leave_conversation"
	TypeSendMessage          = "send_message"
	TypeJoinCommunity        = "join_community"
	TypeLeaveCommunity       = "leave_community"
	TypeSendCommunityMessage = "send_community_message"
	TypeStartTyping          = "start_typing"
	TypeStopTyping           = "stop_typing"
	TypeModerateDelete       = "moderate_delete"
	TypeBanUser              = "ban_user"
	TypeUnbanUser            = "unban_user"
	TypeMuteUser             = "mute_user"
	TypeLockRoom             = "lock_room"
	TypeSetSlowMode          = "set_slow_mode"
	TypePing                 = "ping"
)

// Server -> Client message types. Dotted names are the push-event vocabulary
// shared with the client; the rest are direct replies to a request.
const (
	EventConnected           = "connected"
	EventConversationReady   = "conversation.ready"
	EventRoomJoined          = "room.joined"
	EventHistory             = "room.history"
	EventMessageReceived     = "message.received"
	EventConversationUpdated = "conversation.updated"
	EventUserTyping          = "user.typing"
	EventUserStoppedTyping   = "user.stopped_typing"
	EventRoomUserJoined      = "room.user_joined"
	EventRoomUserLeft        = "room.user_left"
	EventMessageDeleted      = "message.deleted"
	EventSystemMessage       = "room.system_message"
	EventMessageAck          = "message.ack"
	EventError               = "error"
	EventPong                = "pong"
)

// Reason codes carried by error events. A rejected sender sees exactly one of
// these inline; no other session ever observes the rejection.
const (
	ReasonAuthentication     = "AUTHENTICATION"
	ReasonUnauthorized       = "UNAUTHORIZED"
	ReasonPermissionDenied   = "PERMISSION_DENIED"
	ReasonBlocked            = "BLOCKED"
	ReasonBanned             = "BANNED"
	ReasonRoomLocked         = "ROOM_LOCKED"
	ReasonMuted              = "MUTED"
	ReasonValidation         = "VALIDATION"
	ReasonRateLimited        = "RATE_LIMITED"
	ReasonModerationRejected = "MODERATION_REJECTED"
	ReasonNotFound           = "NOT_FOUND"
	ReasonPersistence        = "PERSISTENCE"
	ReasonForbidden          = "FORBIDDEN"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// OpenConversationMsg asks the server to resolve (or lazily create) the
// direct conversation between the caller and RecipientID.
type OpenConversationMsg struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id"`
}

// JoinConversationMsg subscribes the current session to a conversation room.
type JoinConversationMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// LeaveConversationMsg unsubscribes the current session from a conversation room.
type LeaveConversationMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// SendMessageMsg sends a direct message into an existing conversation.
type SendMessageMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	ReplyToID      string `json:"reply_to_id,omitempty"`
}

// JoinCommunityMsg subscribes the current session to a community chat room.
type JoinCommunityMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
}

// LeaveCommunityMsg unsubscribes the current session from a community chat room.
type LeaveCommunityMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
}

// SendCommunityMessageMsg sends a message into a community chat room.
type SendCommunityMessageMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
	Content     string `json:"content"`
}

// StartTypingMsg arms the typing indicator for the caller in a room.
type StartTypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// StopTypingMsg clears the typing indicator for the caller in a room.
type StopTypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// ModerateDeleteMsg tombstones a message (moderator only).
type ModerateDeleteMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Reason    string `json:"reason,omitempty"`
}

// BanUserMsg bans a user from a community chat room (moderator only).
type BanUserMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	Reason      string `json:"reason,omitempty"`
}

// UnbanUserMsg lifts a community chat ban (moderator only).
type UnbanUserMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	Reason      string `json:"reason,omitempty"`
}

// MuteUserMsg mutes a user in a community chat room for DurationSec seconds
// (moderator only). A zero duration mutes until explicitly lifted.
type MuteUserMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	DurationSec int    `json:"duration_sec,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// LockRoomMsg locks or unlocks a community chat room (moderator only).
type LockRoomMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
	Locked      bool   `json:"locked"`
	Reason      string `json:"reason,omitempty"`
}

// SetSlowModeMsg sets the room's slow-mode interval in seconds (moderator
// only). Zero disables slow mode.
type SetSlowModeMsg struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
	Seconds     int    `json:"seconds"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client payload structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent once after a successful authenticated upgrade.
type ConnectedMsg struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

// ConversationReadyMsg answers an open_conversation request with the
// resolved conversation.
type ConversationReadyMsg struct {
	ConversationID string `json:"conversation_id"`
	RecipientID    string `json:"recipient_id"`
	RoomID         string `json:"room_id"`
}

// MessageEvent is the full denormalized message pushed to room members.
type MessageEvent struct {
	ID             string `json:"id"`
	RoomID         string `json:"room_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	CommunityID    string `json:"community_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"` // empty for system messages
	SenderName     string `json:"sender_name,omitempty"`
	Content        string `json:"content"`
	ReplyToID      string `json:"reply_to_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// ConversationUpdatedEvent is the lightweight signal that lets list views
// refresh without reloading full history.
type ConversationUpdatedEvent struct {
	ConversationID string `json:"conversation_id"`
	LastMessageID  string `json:"last_message_id"`
	LastMessageAt  int64  `json:"last_message_at"`
}

// TypingEvent carries typing indicator changes for a room.
type TypingEvent struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// RoomPresenceEvent announces a user joining or leaving a community room.
type RoomPresenceEvent struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// MessageDeletedEvent announces a moderator tombstone.
type MessageDeletedEvent struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	DeletedBy string `json:"deleted_by"`
}

// RoomJoinedMsg acknowledges a successful join.
type RoomJoinedMsg struct {
	RoomID string `json:"room_id"`
}

// HistoryMsg delivers recent messages on join, oldest first. Tombstoned
// messages appear with Deleted set and empty content.
type HistoryMsg struct {
	RoomID   string         `json:"room_id"`
	Messages []HistoryEntry `json:"messages"`
}

// HistoryEntry is one message in a history snapshot.
type HistoryEntry struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content,omitempty"`
	ReplyToID  string `json:"reply_to_id,omitempty"`
	Deleted    bool   `json:"deleted,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// AckMsg confirms a send back to the originating session only.
type AckMsg struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	CommunityID    string `json:"community_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// ErrorMsg is sent by the server to communicate a structured rejection.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct{}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeOpenConversation:
		var m OpenConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinConversation:
		var m JoinConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveConversation:
		var m LeaveConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinCommunity:
		var m JoinCommunityMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveCommunity:
		var m LeaveCommunityMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendCommunityMessage:
		var m SendCommunityMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStartTyping:
		var m StartTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopTyping:
		var m StopTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeModerateDelete:
		var m ModerateDeleteMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeBanUser:
		var m BanUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUnbanUser:
		var m UnbanUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMuteUser:
		var m MuteUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLockRoom:
		var m LockRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSetSlowMode:
		var m SetSlowModeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server payload structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// ConversationRoom returns the room id used for a direct conversation.
func ConversationRoom(conversationID string) string {
	return "conv:" + conversationID
}

// CommunityRoom returns the room id used for a community chat.
func CommunityRoom(communityID string) string {
	return "community:" + communityID
}

// IsCommunityRoom reports whether roomID names a community chat room.
func IsCommunityRoom(roomID string) bool {
	return strings.HasPrefix(roomID, "community:")
}

// RoomSuffix returns the container id embedded in a room id ("conv:<id>" or
// "community:<id>"). It returns the input unchanged if there is no prefix.
func RoomSuffix(roomID string) string {
	if i := strings.IndexByte(roomID, ':'); i >= 0 {
		return roomID[i+1:]
	}
	return roomID
}

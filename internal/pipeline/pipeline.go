// Package pipeline orchestrates message sends: permission gate, moderation,
// persistence, and broadcast, for both direct conversations and community
// chat. Every send either completes fully or is rejected back to the
// originating caller with a structured reason; other sessions never observe
// a rejected send.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/orbitverse/chat-core/internal/gate"
	"github.com/orbitverse/chat-core/internal/metrics"
	"github.com/orbitverse/chat-core/internal/moderation"
	"github.com/orbitverse/chat-core/internal/protocol"
	"github.com/orbitverse/chat-core/internal/store"
)

// HistoryLimit is the number of recent messages delivered on join.
const HistoryLimit = 50

// Store is the persistence surface the pipeline depends on. *store.Store
// implements it; tests substitute an in-memory fake.
type Store interface {
	GetOrCreateConversation(ctx context.Context, a, b string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	CreateDirectMessage(ctx context.Context, conversationID, senderID, content, replyToID string) (*store.Message, error)
	CreateCommunityMessage(ctx context.Context, communityID, senderID, content string) (*store.Message, error)
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	TombstoneMessage(ctx context.Context, id, deletedBy, reason string) error
	GetOrCreateCommunityRoom(ctx context.Context, communityID string) (*store.CommunityRoom, error)
	SetRoomLocked(ctx context.Context, communityID string, locked bool) error
	SetRoomSlowMode(ctx context.Context, communityID string, seconds int) error
	AppendModerationAction(ctx context.Context, a *moderation.Action) error
	ModerationActionsFor(ctx context.Context, communityID, targetID string) ([]moderation.Action, error)
	AppendAudit(ctx context.Context, rec *store.AuditRecord) error
	CountRecentAudit(ctx context.Context, targetID string, window time.Duration) (int, error)
	IsActiveMember(ctx context.Context, userID, communityID string) (bool, error)
	MemberRole(ctx context.Context, userID, communityID string) (string, error)
	SenderName(ctx context.Context, userID string) (string, error)
	RecentConversationMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	RecentCommunityMessages(ctx context.Context, communityID string, limit int) ([]*store.Message, error)
}

// PermissionGate checks whether a sender may message a recipient.
type PermissionGate interface {
	CanMessage(ctx context.Context, sender, recipient string) (gate.Decision, error)
}

// Broadcaster delivers an event to every session in a room except the
// excluded user's.
type Broadcaster interface {
	Broadcast(roomID, event string, payload interface{}, excludeUser string)
}

// Notifier delivers an event to every session of one user.
type Notifier interface {
	SendToUser(userID, event string, payload interface{})
}

// RateLimiter enforces the per-(user, room) send budget.
type RateLimiter interface {
	AllowRoom(ctx context.Context, userID, roomID string) (bool, error)
}

// Pipeline wires the send flow. Construct with New; all dependencies are
// required except the limiter and filter, which default to permissive
// no-ops only in tests that inject nil-safe fakes.
type Pipeline struct {
	store   Store
	gate    PermissionGate
	filter  *moderation.Filter
	limiter RateLimiter
	rooms   Broadcaster
	users   Notifier
}

// New creates a Pipeline over its collaborators.
func New(st Store, g PermissionGate, filter *moderation.Filter, limiter RateLimiter, rooms Broadcaster, users Notifier) *Pipeline {
	return &Pipeline{
		store:   st,
		gate:    g,
		filter:  filter,
		limiter: limiter,
		rooms:   rooms,
		users:   users,
	}
}

// OpenConversation resolves (or lazily creates) the direct conversation
// between sender and recipient. The permission gate runs first so a denied
// sender cannot force conversation rows into existence.
func (p *Pipeline) OpenConversation(ctx context.Context, senderID, recipientID string) (*store.Conversation, error) {
	if recipientID == "" {
		return nil, reject(protocol.ReasonValidation, "recipient id is required")
	}

	dec, err := p.gate.CanMessage(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open conversation gate: %w", err)
	}
	if !dec.Allowed {
		return nil, reject(protocol.ReasonPermissionDenied, dec.Reason)
	}

	conv, err := p.store.GetOrCreateConversation(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open conversation: %w", err)
	}
	return conv, nil
}

// ConversationForJoin authorizes a join and returns the conversation with
// its recent history. Only participants may join.
func (p *Pipeline) ConversationForJoin(ctx context.Context, userID, conversationID string) (*store.Conversation, []*store.Message, error) {
	conv, err := p.store.GetConversation(ctx, conversationID)
	if err == store.ErrNotFound {
		return nil, nil, reject(protocol.ReasonNotFound, "conversation not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: load conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, nil, reject(protocol.ReasonUnauthorized, "not a participant of this conversation")
	}

	history, err := p.store.RecentConversationMessages(ctx, conversationID, HistoryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: conversation history: %w", err)
	}
	return conv, history, nil
}

// SendDirect runs the direct-message state machine:
// RECEIVED → AUTHORIZED → PERSISTED → BROADCAST → ACKNOWLEDGED, with
// AUTH_DENIED and PERSIST_FAILED exits. The message insert and the
// conversation pointer update commit atomically; after the commit the
// broadcast is always attempted.
func (p *Pipeline) SendDirect(ctx context.Context, senderID, conversationID, content, replyToID string) (*store.Message, error) {
	st := stateReceived

	if err := moderation.ValidateContent(content); err != nil {
		return nil, reject(protocol.ReasonValidation, err.Error())
	}

	conv, err := p.store.GetConversation(ctx, conversationID)
	if err == store.ErrNotFound {
		return nil, reject(protocol.ReasonNotFound, "conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: load conversation: %w", err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, reject(protocol.ReasonUnauthorized, "not a participant of this conversation")
	}
	recipientID := conv.Other(senderID)

	// Policy is resolved on every send; relationships may have changed
	// since the conversation was opened.
	dec, err := p.gate.CanMessage(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: direct send gate: %w", err)
	}
	if !dec.Allowed {
		st = stateAuthDenied
		log.Printf("pipeline: direct send %s conv=%s sender=%s: %s", st, conversationID, senderID, dec.Reason)
		return nil, reject(protocol.ReasonPermissionDenied, dec.Reason)
	}

	blocked, err := p.store.IsBlocked(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: block check: %w", err)
	}
	if blocked {
		st = stateAuthDenied
		log.Printf("pipeline: direct send %s conv=%s sender=%s: blocked", st, conversationID, senderID)
		return nil, reject(protocol.ReasonBlocked, "this conversation is blocked")
	}
	st = stateAuthorized

	msg, err := p.store.CreateDirectMessage(ctx, conversationID, senderID, content, replyToID)
	if err != nil {
		st = statePersistFailed
		log.Printf("pipeline: direct send %s conv=%s sender=%s: %v", st, conversationID, senderID, err)
		return nil, fmt.Errorf("pipeline: persist direct message: %w", err)
	}
	st = statePersisted

	senderName, err := p.store.SenderName(ctx, senderID)
	if err != nil {
		// Denormalized name is best-effort; the message is already durable.
		log.Printf("pipeline: sender name for %s: %v", senderID, err)
	}

	roomID := protocol.ConversationRoom(conversationID)
	p.rooms.Broadcast(roomID, protocol.EventMessageReceived, protocol.MessageEvent{
		ID:             msg.ID,
		RoomID:         roomID,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        msg.Content,
		ReplyToID:      msg.ReplyToID,
		CreatedAt:      msg.CreatedAt.Unix(),
	}, senderID)
	st = stateBroadcast

	updated := protocol.ConversationUpdatedEvent{
		ConversationID: conversationID,
		LastMessageID:  msg.ID,
		LastMessageAt:  msg.CreatedAt.Unix(),
	}
	p.users.SendToUser(senderID, protocol.EventConversationUpdated, updated)
	p.users.SendToUser(recipientID, protocol.EventConversationUpdated, updated)

	st = stateAcknowledged
	metrics.MessagesTotal.WithLabelValues("direct").Inc()
	return msg, nil
}

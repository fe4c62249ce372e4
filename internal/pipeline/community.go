package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/orbitverse/chat-core/internal/metrics"
	"github.com/orbitverse/chat-core/internal/moderation"
	"github.com/orbitverse/chat-core/internal/protocol"
	"github.com/orbitverse/chat-core/internal/store"
)

// JoinCommunity authorizes a user to enter a community chat room and returns
// its recent history. The room is created lazily on first access. A banned
// user is refused even with an active membership.
func (p *Pipeline) JoinCommunity(ctx context.Context, userID, communityID string) ([]*store.Message, error) {
	member, err := p.store.IsActiveMember(ctx, userID, communityID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: join membership check: %w", err)
	}
	if !member {
		return nil, reject(protocol.ReasonUnauthorized, "not an active member of this community")
	}

	if _, err := p.store.GetOrCreateCommunityRoom(ctx, communityID); err != nil {
		return nil, fmt.Errorf("pipeline: join community room: %w", err)
	}

	state, err := p.moderationState(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	if state.Banned {
		return nil, reject(protocol.ReasonBanned, "you are banned from this community chat")
	}

	history, err := p.store.RecentCommunityMessages(ctx, communityID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: community history: %w", err)
	}
	return history, nil
}

// SendCommunity runs the community send flow. On top of the direct-message
// machine it checks, in order: active membership, ban, room lock, mute
// (expired mutes clear lazily right here, on the send attempt), the sliding
// rate limit, and content moderation. A send that violates the rate limit
// is fully rejected and does not consume window budget.
func (p *Pipeline) SendCommunity(ctx context.Context, senderID, communityID, content string) (*store.Message, error) {
	if err := moderation.ValidateContent(content); err != nil {
		return nil, reject(protocol.ReasonValidation, err.Error())
	}

	member, err := p.store.IsActiveMember(ctx, senderID, communityID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: send membership check: %w", err)
	}
	if !member {
		return nil, reject(protocol.ReasonUnauthorized, "not an active member of this community")
	}

	room, err := p.store.GetOrCreateCommunityRoom(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: community room: %w", err)
	}

	state, err := p.moderationState(ctx, communityID, senderID)
	if err != nil {
		return nil, err
	}
	if state.Banned {
		return nil, reject(protocol.ReasonBanned, "you are banned from this community chat")
	}
	if room.Locked {
		return nil, reject(protocol.ReasonRoomLocked, "this room is locked")
	}
	if state.Muted {
		if state.MuteExpiresAt != nil {
			return nil, rejectf(protocol.ReasonMuted, "you are muted until %s", state.MuteExpiresAt.UTC().Format(time.RFC3339))
		}
		return nil, reject(protocol.ReasonMuted, "you are muted in this room")
	}

	roomID := protocol.CommunityRoom(communityID)
	allowed, err := p.limiter.AllowRoom(ctx, senderID, roomID)
	if err != nil {
		// The limiter fails open; log and continue.
		log.Printf("pipeline: rate limit check user=%s room=%s: %v", senderID, roomID, err)
	}
	if !allowed {
		metrics.MessagesRejected.WithLabelValues("rate_limited").Inc()
		return nil, reject(protocol.ReasonRateLimited, "too many messages, slow down")
	}

	if result := p.filter.Check(content); result.Blocked {
		metrics.MessagesRejected.WithLabelValues(result.Reason).Inc()
		log.Printf("pipeline: moderation rejected user=%s room=%s reason=%s term=%q",
			senderID, roomID, result.Reason, result.Term)
		return nil, rejectf(protocol.ReasonModerationRejected, "message rejected: %s", result.Reason)
	}

	msg, err := p.store.CreateCommunityMessage(ctx, communityID, senderID, content)
	if err != nil {
		return nil, fmt.Errorf("pipeline: persist community message: %w", err)
	}

	senderName, err := p.store.SenderName(ctx, senderID)
	if err != nil {
		log.Printf("pipeline: sender name for %s: %v", senderID, err)
	}

	p.rooms.Broadcast(roomID, protocol.EventMessageReceived, protocol.MessageEvent{
		ID:          msg.ID,
		RoomID:      roomID,
		CommunityID: communityID,
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt.Unix(),
	}, senderID)

	metrics.MessagesTotal.WithLabelValues("community").Inc()
	return msg, nil
}

// SendSystem persists and broadcasts a system message (nil sender sentinel).
// System messages bypass moderation and rate limiting but still flow through
// persistence and broadcast.
func (p *Pipeline) SendSystem(ctx context.Context, communityID, content string) (*store.Message, error) {
	if _, err := p.store.GetOrCreateCommunityRoom(ctx, communityID); err != nil {
		return nil, fmt.Errorf("pipeline: system message room: %w", err)
	}

	msg, err := p.store.CreateCommunityMessage(ctx, communityID, "", content)
	if err != nil {
		return nil, fmt.Errorf("pipeline: persist system message: %w", err)
	}

	roomID := protocol.CommunityRoom(communityID)
	p.rooms.Broadcast(roomID, protocol.EventSystemMessage, protocol.MessageEvent{
		ID:          msg.ID,
		RoomID:      roomID,
		CommunityID: communityID,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt.Unix(),
	}, "")

	metrics.MessagesTotal.WithLabelValues("system").Inc()
	return msg, nil
}

// moderationState derives the sender's current ban/mute standing from the
// persisted action history. Because state is derived on every call, expired
// mutes clear here without any sweeper.
func (p *Pipeline) moderationState(ctx context.Context, communityID, userID string) (moderation.State, error) {
	actions, err := p.store.ModerationActionsFor(ctx, communityID, userID)
	if err != nil {
		return moderation.State{}, fmt.Errorf("pipeline: moderation state: %w", err)
	}
	return moderation.Resolve(actions, time.Now()), nil
}

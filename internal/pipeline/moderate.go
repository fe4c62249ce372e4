package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/orbitverse/chat-core/internal/moderation"
	"github.com/orbitverse/chat-core/internal/protocol"
	"github.com/orbitverse/chat-core/internal/store"
)

// moderatorRoles are the membership roles allowed to run destructive
// moderation operations.
var moderatorRoles = map[string]bool{
	"moderator": true,
	"admin":     true,
	"owner":     true,
}

// requireModerator resolves the actor's role in the community and rejects
// non-moderators.
func (p *Pipeline) requireModerator(ctx context.Context, actorID, communityID string) error {
	role, err := p.store.MemberRole(ctx, actorID, communityID)
	if err != nil {
		return fmt.Errorf("pipeline: role lookup: %w", err)
	}
	if !moderatorRoles[role] {
		return reject(protocol.ReasonForbidden, "moderator role required")
	}
	return nil
}

// DeleteMessage tombstones a community message, records the action and an
// audit entry, and announces the deletion to the room. Direct messages are
// not moderatable through this path.
func (p *Pipeline) DeleteMessage(ctx context.Context, actorID, messageID, reason string) error {
	msg, err := p.store.GetMessage(ctx, messageID)
	if err == store.ErrNotFound {
		return reject(protocol.ReasonNotFound, "message not found")
	}
	if err != nil {
		return fmt.Errorf("pipeline: load message: %w", err)
	}
	if msg.CommunityID == "" {
		return reject(protocol.ReasonForbidden, "direct messages cannot be moderated")
	}

	if err := p.requireModerator(ctx, actorID, msg.CommunityID); err != nil {
		return err
	}

	if err := p.store.TombstoneMessage(ctx, messageID, actorID, reason); err != nil {
		return fmt.Errorf("pipeline: tombstone: %w", err)
	}

	if err := p.store.AppendModerationAction(ctx, &moderation.Action{
		CommunityID: msg.CommunityID,
		ActorID:     actorID,
		TargetID:    msg.SenderID,
		Kind:        moderation.KindDelete,
		Reason:      reason,
		MessageID:   messageID,
	}); err != nil {
		return fmt.Errorf("pipeline: record delete action: %w", err)
	}

	if err := p.store.AppendAudit(ctx, &store.AuditRecord{
		ActorID:   actorID,
		TargetID:  msg.SenderID,
		Action:    string(moderation.KindDelete),
		Reason:    reason,
		MessageID: messageID,
		Detail:    map[string]interface{}{"community_id": msg.CommunityID},
	}); err != nil {
		return fmt.Errorf("pipeline: audit delete: %w", err)
	}
	if msg.SenderID != "" {
		p.noteRepeatOffender(ctx, msg.SenderID)
	}

	roomID := protocol.CommunityRoom(msg.CommunityID)
	p.rooms.Broadcast(roomID, protocol.EventMessageDeleted, protocol.MessageDeletedEvent{
		RoomID:    roomID,
		MessageID: messageID,
		DeletedBy: actorID,
	}, "")
	return nil
}

// escalationWindow bounds the repeat-offender check that runs after each
// destructive action.
const escalationWindow = 24 * time.Hour

// noteRepeatOffender logs when the target has accumulated several audited
// actions in the recent window. Informational only; policy stays with the
// moderators.
func (p *Pipeline) noteRepeatOffender(ctx context.Context, targetID string) {
	n, err := p.store.CountRecentAudit(ctx, targetID, escalationWindow)
	if err != nil {
		log.Printf("pipeline: recent audit count for %s: %v", targetID, err)
		return
	}
	if n >= 3 {
		log.Printf("pipeline: target=%s has %d moderation actions in the last %s", targetID, n, escalationWindow)
	}
}

// SetRoomLock locks or unlocks a community chat room and announces the
// change as a system message. While locked, every non-system send into the
// room is rejected.
func (p *Pipeline) SetRoomLock(ctx context.Context, actorID, communityID string, locked bool, reason string) error {
	if err := p.requireModerator(ctx, actorID, communityID); err != nil {
		return err
	}
	if _, err := p.store.GetOrCreateCommunityRoom(ctx, communityID); err != nil {
		return fmt.Errorf("pipeline: lock room: %w", err)
	}
	if err := p.store.SetRoomLocked(ctx, communityID, locked); err != nil {
		return fmt.Errorf("pipeline: lock room: %w", err)
	}

	action := "lock"
	announcement := "This room has been locked by a moderator."
	if !locked {
		action = "unlock"
		announcement = "This room has been unlocked."
	}

	if err := p.store.AppendAudit(ctx, &store.AuditRecord{
		ActorID:  actorID,
		TargetID: communityID,
		Action:   action,
		Reason:   reason,
		Detail:   map[string]interface{}{"community_id": communityID},
	}); err != nil {
		return fmt.Errorf("pipeline: audit %s: %w", action, err)
	}

	if _, err := p.SendSystem(ctx, communityID, announcement); err != nil {
		// The lock is already durable; the announcement is best-effort.
		log.Printf("pipeline: announce %s room=%s: %v", action, communityID, err)
	}
	return nil
}

// SetSlowMode sets the room's slow-mode interval. The flag is persisted and
// surfaced to clients; it does not currently gate sends server-side.
func (p *Pipeline) SetSlowMode(ctx context.Context, actorID, communityID string, seconds int) error {
	if err := p.requireModerator(ctx, actorID, communityID); err != nil {
		return err
	}
	if seconds < 0 || seconds > 3600 {
		return reject(protocol.ReasonValidation, "slow mode must be between 0 and 3600 seconds")
	}
	if _, err := p.store.GetOrCreateCommunityRoom(ctx, communityID); err != nil {
		return fmt.Errorf("pipeline: slow mode: %w", err)
	}
	if err := p.store.SetRoomSlowMode(ctx, communityID, seconds); err != nil {
		return fmt.Errorf("pipeline: slow mode: %w", err)
	}

	if err := p.store.AppendAudit(ctx, &store.AuditRecord{
		ActorID:  actorID,
		TargetID: communityID,
		Action:   "slow_mode",
		Detail:   map[string]interface{}{"community_id": communityID, "seconds": seconds},
	}); err != nil {
		return fmt.Errorf("pipeline: audit slow mode: %w", err)
	}
	return nil
}

// BanUser records a ban action against target in the community.
func (p *Pipeline) BanUser(ctx context.Context, actorID, communityID, targetID, reason string) error {
	if err := p.requireModerator(ctx, actorID, communityID); err != nil {
		return err
	}

	if err := p.store.AppendModerationAction(ctx, &moderation.Action{
		CommunityID: communityID,
		ActorID:     actorID,
		TargetID:    targetID,
		Kind:        moderation.KindBan,
		Reason:      reason,
	}); err != nil {
		return fmt.Errorf("pipeline: record ban: %w", err)
	}

	if err := p.store.AppendAudit(ctx, &store.AuditRecord{
		ActorID:  actorID,
		TargetID: targetID,
		Action:   string(moderation.KindBan),
		Reason:   reason,
		Detail:   map[string]interface{}{"community_id": communityID},
	}); err != nil {
		return fmt.Errorf("pipeline: audit ban: %w", err)
	}

	p.noteRepeatOffender(ctx, targetID)
	return nil
}

// UnbanUser records an unban action. Effective state flips because the
// unban's timestamp is newer than the ban's — nothing is deleted.
func (p *Pipeline) UnbanUser(ctx context.Context, actorID, communityID, targetID, reason string) error {
	if err := p.requireModerator(ctx, actorID, communityID); err != nil {
		return err
	}

	if err := p.store.AppendModerationAction(ctx, &moderation.Action{
		CommunityID: communityID,
		ActorID:     actorID,
		TargetID:    targetID,
		Kind:        moderation.KindUnban,
		Reason:      reason,
	}); err != nil {
		return fmt.Errorf("pipeline: record unban: %w", err)
	}
	return nil
}

// MuteUser records a mute action against target. A zero duration mutes
// until a newer action supersedes it; otherwise the mute carries an expiry
// that clears lazily on the target's next send attempt.
func (p *Pipeline) MuteUser(ctx context.Context, actorID, communityID, targetID string, duration time.Duration, reason string) error {
	if err := p.requireModerator(ctx, actorID, communityID); err != nil {
		return err
	}

	action := &moderation.Action{
		CommunityID: communityID,
		ActorID:     actorID,
		TargetID:    targetID,
		Kind:        moderation.KindMute,
		Reason:      reason,
	}
	if duration > 0 {
		expires := time.Now().Add(duration)
		action.ExpiresAt = &expires
	}

	if err := p.store.AppendModerationAction(ctx, action); err != nil {
		return fmt.Errorf("pipeline: record mute: %w", err)
	}

	if err := p.store.AppendAudit(ctx, &store.AuditRecord{
		ActorID:  actorID,
		TargetID: targetID,
		Action:   string(moderation.KindMute),
		Reason:   reason,
		Detail:   map[string]interface{}{"community_id": communityID},
	}); err != nil {
		return fmt.Errorf("pipeline: audit mute: %w", err)
	}

	p.noteRepeatOffender(ctx, targetID)
	return nil
}

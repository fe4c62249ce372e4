package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orbitverse/chat-core/internal/moderation"
)

// AppendModerationAction records one immutable moderation action. Effective
// ban/mute state is derived by moderation.Resolve over the history; no
// current-state column exists to get out of sync.
func (s *Store) AppendModerationAction(ctx context.Context, a *moderation.Action) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	const insert = `
		INSERT INTO moderation_actions
			(id, community_id, actor_id, target_id, kind, reason, message_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8)
		RETURNING created_at`

	var expires sql.NullTime
	if a.ExpiresAt != nil {
		expires = sql.NullTime{Time: *a.ExpiresAt, Valid: true}
	}

	if err := s.db.QueryRowContext(ctx, insert,
		a.ID, a.CommunityID, a.ActorID, a.TargetID, string(a.Kind),
		a.Reason, a.MessageID, expires,
	).Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("store: append moderation action: %w", err)
	}
	return nil
}

// ModerationActionsFor returns every moderation action recorded against the
// user in the community, newest first. Resolution does not depend on the
// order, but newest-first keeps the common "inspect latest" path cheap.
func (s *Store) ModerationActionsFor(ctx context.Context, communityID, targetID string) ([]moderation.Action, error) {
	const query = `
		SELECT id, community_id, actor_id, target_id, kind, reason,
		       message_id, expires_at, created_at
		FROM moderation_actions
		WHERE community_id = $1 AND target_id = $2
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, communityID, targetID)
	if err != nil {
		return nil, fmt.Errorf("store: moderation actions: %w", err)
	}
	defer rows.Close()

	var out []moderation.Action
	for rows.Next() {
		var (
			a         moderation.Action
			kind      string
			messageID sql.NullString
			expires   sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.CommunityID, &a.ActorID, &a.TargetID, &kind,
			&a.Reason, &messageID, &expires, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan moderation action: %w", err)
		}
		a.Kind = moderation.ActionKind(kind)
		a.MessageID = messageID.String
		if expires.Valid {
			t := expires.Time
			a.ExpiresAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: moderation actions: %w", err)
	}
	return out, nil
}

// AuditRecord captures one moderator-initiated destructive action for review.
type AuditRecord struct {
	ActorID   string
	TargetID  string
	Action    string
	Reason    string
	MessageID string
	Detail    map[string]interface{}
}

// AppendAudit inserts an audit record. Detail is marshalled to JSONB.
func (s *Store) AppendAudit(ctx context.Context, rec *AuditRecord) error {
	var detail []byte
	if len(rec.Detail) > 0 {
		var err error
		detail, err = json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("store: marshal audit detail: %w", err)
		}
	}

	const insert = `
		INSERT INTO moderation_audit (id, actor_id, target_id, action, reason, message_id, detail)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7)`

	if _, err := s.db.ExecContext(ctx, insert,
		uuid.NewString(), rec.ActorID, rec.TargetID, rec.Action,
		rec.Reason, rec.MessageID, detail,
	); err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

// CountRecentAudit returns the number of audit records against a target
// within the trailing window. Useful for escalation review tooling.
func (s *Store) CountRecentAudit(ctx context.Context, targetID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_audit
		WHERE target_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	if err := s.db.QueryRowContext(ctx, query, targetID, window.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count recent audit: %w", err)
	}
	return count, nil
}

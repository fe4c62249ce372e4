package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one persisted, append-only chat message. Exactly one of
// ConversationID and CommunityID is set. SenderID is empty for system
// messages. Deletion is a tombstone: the row is never removed.
type Message struct {
	ID             string
	ConversationID string
	CommunityID    string
	SenderID       string
	Content        string
	ReplyToID      string
	Deleted        bool
	DeletedBy      string
	DeletedReason  string
	DeletedAt      *time.Time
	CreatedAt      time.Time
}

// CreateDirectMessage persists a direct message and advances the
// conversation's last-message pointer in one transaction, so a message
// without an updated pointer is never observable.
func (s *Store) CreateDirectMessage(ctx context.Context, conversationID, senderID, content, replyToID string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin direct message: %w", err)
	}
	defer tx.Rollback()

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ReplyToID:      replyToID,
	}

	const insert = `
		INSERT INTO messages (id, conversation_id, sender_id, content, reply_to_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid)
		RETURNING created_at`

	if err := tx.QueryRowContext(ctx, insert,
		msg.ID, conversationID, senderID, content, replyToID,
	).Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: insert direct message: %w", err)
	}

	const pointer = `
		UPDATE conversations
		SET last_message_id = $1, last_message_at = $2
		WHERE id = $3`

	if _, err := tx.ExecContext(ctx, pointer, msg.ID, msg.CreatedAt, conversationID); err != nil {
		return nil, fmt.Errorf("store: update conversation pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit direct message: %w", err)
	}
	return msg, nil
}

// CreateCommunityMessage persists a community chat message. An empty
// senderID records a system message.
func (s *Store) CreateCommunityMessage(ctx context.Context, communityID, senderID, content string) (*Message, error) {
	msg := &Message{
		ID:          uuid.NewString(),
		CommunityID: communityID,
		SenderID:    senderID,
		Content:     content,
	}

	const insert = `
		INSERT INTO messages (id, community_id, sender_id, content)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING created_at`

	if err := s.db.QueryRowContext(ctx, insert,
		msg.ID, communityID, senderID, content,
	).Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: insert community message: %w", err)
	}
	return msg, nil
}

// GetMessage loads a message by id. Returns ErrNotFound if it does not exist.
func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	const query = `
		SELECT id, conversation_id, community_id, sender_id, content, reply_to_id,
		       deleted, deleted_by, deleted_reason, deleted_at, created_at
		FROM messages
		WHERE id = $1`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load message %s: %w", id, err)
	}
	return msg, nil
}

// TombstoneMessage marks a message deleted without removing the row.
// Tombstoning an already-deleted message is a no-op.
func (s *Store) TombstoneMessage(ctx context.Context, id, deletedBy, reason string) error {
	const update = `
		UPDATE messages
		SET deleted = TRUE, deleted_by = $2, deleted_reason = $3, deleted_at = NOW()
		WHERE id = $1 AND NOT deleted`

	if _, err := s.db.ExecContext(ctx, update, id, deletedBy, reason); err != nil {
		return fmt.Errorf("store: tombstone message %s: %w", id, err)
	}
	return nil
}

// RecentConversationMessages returns the latest messages of a conversation
// in chronological order (oldest first).
func (s *Store) RecentConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	const query = `
		SELECT id, conversation_id, community_id, sender_id, content, reply_to_id,
		       deleted, deleted_by, deleted_reason, deleted_at, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return s.recentMessages(ctx, query, conversationID, limit)
}

// RecentCommunityMessages returns the latest messages of a community room
// in chronological order (oldest first).
func (s *Store) RecentCommunityMessages(ctx context.Context, communityID string, limit int) ([]*Message, error) {
	const query = `
		SELECT id, conversation_id, community_id, sender_id, content, reply_to_id,
		       deleted, deleted_by, deleted_reason, deleted_at, created_at
		FROM messages
		WHERE community_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return s.recentMessages(ctx, query, communityID, limit)
}

func (s *Store) recentMessages(ctx context.Context, query, containerID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, containerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}

	// Query returns newest first; flip to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg                               Message
		convID, commID, senderID          sql.NullString
		replyTo, deletedBy, deletedReason sql.NullString
		deletedAt                         sql.NullTime
	)
	err := row.Scan(&msg.ID, &convID, &commID, &senderID, &msg.Content, &replyTo,
		&msg.Deleted, &deletedBy, &deletedReason, &deletedAt, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.ConversationID = convID.String
	msg.CommunityID = commID.String
	msg.SenderID = senderID.String
	msg.ReplyToID = replyTo.String
	msg.DeletedBy = deletedBy.String
	msg.DeletedReason = deletedReason.String
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return &msg, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct two-party chat container. Participants are stored
// in canonical order (UserLow < UserHigh) so the unordered pair is unique.
type Conversation struct {
	ID            string
	UserLow       string
	UserHigh      string
	LastMessageID string
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.UserLow || userID == c.UserHigh
}

// Other returns the participant that is not userID, or "" if userID is not
// a participant.
func (c *Conversation) Other(userID string) string {
	switch userID {
	case c.UserLow:
		return c.UserHigh
	case c.UserHigh:
		return c.UserLow
	default:
		return ""
	}
}

// CanonicalPair orders two user ids so that (a, b) and (b, a) map to the
// same (low, high) pair.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetOrCreateConversation resolves the conversation for the unordered pair,
// creating it on first access. Creation is race-safe: concurrent callers
// both attempt the insert, the unique pair index admits exactly one, and
// both then read the surviving row.
func (s *Store) GetOrCreateConversation(ctx context.Context, a, b string) (*Conversation, error) {
	if a == b {
		return nil, fmt.Errorf("store: conversation requires two distinct participants")
	}
	low, high := CanonicalPair(a, b)

	const insert = `
		INSERT INTO conversations (id, user_low, user_high)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_low, user_high) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, insert, uuid.NewString(), low, high); err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}

	const query = `
		SELECT id, user_low, user_high, last_message_id, last_message_at, created_at
		FROM conversations
		WHERE user_low = $1 AND user_high = $2`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, low, high))
	if err != nil {
		return nil, fmt.Errorf("store: load conversation pair: %w", err)
	}
	return conv, nil
}

// GetConversation loads a conversation by id. Returns ErrNotFound if it does
// not exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	const query = `
		SELECT id, user_low, user_high, last_message_id, last_message_at, created_at
		FROM conversations
		WHERE id = $1`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversation %s: %w", id, err)
	}
	return conv, nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var (
		conv   Conversation
		lastID sql.NullString
		lastAt sql.NullTime
	)
	err := row.Scan(&conv.ID, &conv.UserLow, &conv.UserHigh, &lastID, &lastAt, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	conv.LastMessageID = lastID.String
	if lastAt.Valid {
		t := lastAt.Time
		conv.LastMessageAt = &t
	}
	return &conv, nil
}

// IsBlocked reports whether either participant has blocked the other. The
// blocks table is owned by the account service; a block in either direction
// freezes the conversation.
func (s *Store) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			   OR (blocker_id = $2 AND blocked_id = $1)
		)`

	var blocked bool
	if err := s.db.QueryRowContext(ctx, query, a, b).Scan(&blocked); err != nil {
		return false, fmt.Errorf("store: block lookup: %w", err)
	}
	return blocked, nil
}

package store

import (
	"context"
	"fmt"
)

// TouchParticipant marks the user's chat standing active and refreshes their
// last-seen timestamp. Called when a user comes online.
func (s *Store) TouchParticipant(ctx context.Context, userID string) error {
	const upsert = `
		INSERT INTO chat_participants (user_id, active, last_seen_at)
		VALUES ($1, TRUE, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET active = TRUE, last_seen_at = NOW()`

	if _, err := s.db.ExecContext(ctx, upsert, userID); err != nil {
		return fmt.Errorf("store: touch participant: %w", err)
	}
	return nil
}

// MarkParticipantInactive finalizes a user's offline state after the
// disconnect grace window has elapsed without a reconnect.
func (s *Store) MarkParticipantInactive(ctx context.Context, userID string) error {
	const update = `
		UPDATE chat_participants
		SET active = FALSE, last_seen_at = NOW()
		WHERE user_id = $1`

	if _, err := s.db.ExecContext(ctx, update, userID); err != nil {
		return fmt.Errorf("store: mark participant inactive: %w", err)
	}
	return nil
}

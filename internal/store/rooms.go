package store

import (
	"context"
	"fmt"
	"time"
)

// CommunityRoom is the persisted chat room of one community. Rooms are
// created lazily on first access.
type CommunityRoom struct {
	CommunityID     string
	Locked          bool
	SlowModeSeconds int
	CreatedAt       time.Time
}

// GetOrCreateCommunityRoom resolves a community's chat room, creating it on
// first access. Creation races are settled by the primary key.
func (s *Store) GetOrCreateCommunityRoom(ctx context.Context, communityID string) (*CommunityRoom, error) {
	const insert = `
		INSERT INTO community_rooms (community_id)
		VALUES ($1)
		ON CONFLICT (community_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, insert, communityID); err != nil {
		return nil, fmt.Errorf("store: create community room: %w", err)
	}

	const query = `
		SELECT community_id, locked, slow_mode_seconds, created_at
		FROM community_rooms
		WHERE community_id = $1`

	var room CommunityRoom
	err := s.db.QueryRowContext(ctx, query, communityID).Scan(
		&room.CommunityID, &room.Locked, &room.SlowModeSeconds, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: load community room %s: %w", communityID, err)
	}
	return &room, nil
}

// SetRoomLocked sets the room-wide lock flag. Locked rooms reject every
// non-system send.
func (s *Store) SetRoomLocked(ctx context.Context, communityID string, locked bool) error {
	const update = `UPDATE community_rooms SET locked = $2 WHERE community_id = $1`
	if _, err := s.db.ExecContext(ctx, update, communityID, locked); err != nil {
		return fmt.Errorf("store: set room lock: %w", err)
	}
	return nil
}

// SetRoomSlowMode stores the room's slow-mode interval in seconds.
func (s *Store) SetRoomSlowMode(ctx context.Context, communityID string, seconds int) error {
	const update = `UPDATE community_rooms SET slow_mode_seconds = $2 WHERE community_id = $1`
	if _, err := s.db.ExecContext(ctx, update, communityID, seconds); err != nil {
		return fmt.Errorf("store: set room slow mode: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/orbitverse/chat-core/internal/gate"
)

// The queries in this file read tables owned by the account service. Raw
// policy values are normalized to typed gate.Policy exactly once, here at
// the data-access boundary.

// MessagePolicy resolves a user's current direct-message policy.
func (s *Store) MessagePolicy(ctx context.Context, userID string) (gate.Policy, error) {
	const query = `SELECT message_policy FROM users WHERE id = $1`

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: message policy: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: message policy: %w", err)
	}
	return gate.ParsePolicy(raw.String), nil
}

// SenderName resolves a user's display name for denormalized broadcasts.
func (s *Store) SenderName(ctx context.Context, userID string) (string, error) {
	const query = `SELECT username FROM users WHERE id = $1`

	var name string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: sender name: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: sender name: %w", err)
	}
	return name, nil
}

// AreFriends reports whether an accepted friendship edge exists between the
// two users, in either direction.
func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE status = 'accepted'
			  AND ((requester_id = $1 AND addressee_id = $2)
			    OR (requester_id = $2 AND addressee_id = $1))
		)`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, a, b).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: friendship lookup: %w", err)
	}
	return ok, nil
}

// IsActiveMember reports whether the user holds an active membership in the
// community.
func (s *Store) IsActiveMember(ctx context.Context, userID, communityID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE user_id = $1 AND community_id = $2 AND active
		)`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, userID, communityID).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: membership lookup: %w", err)
	}
	return ok, nil
}

// ShareCommunity reports whether the two users have at least one active
// community membership in common.
func (s *Store) ShareCommunity(ctx context.Context, a, b string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM memberships ma
			JOIN memberships mb ON ma.community_id = mb.community_id
			WHERE ma.user_id = $1 AND ma.active
			  AND mb.user_id = $2 AND mb.active
		)`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, a, b).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: shared community lookup: %w", err)
	}
	return ok, nil
}

// MemberRole returns the user's role in the community, or "" if the user is
// not an active member.
func (s *Store) MemberRole(ctx context.Context, userID, communityID string) (string, error) {
	const query = `
		SELECT role FROM memberships
		WHERE user_id = $1 AND community_id = $2 AND active`

	var role string
	err := s.db.QueryRowContext(ctx, query, userID, communityID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: member role lookup: %w", err)
	}
	return role, nil
}

// Package gate decides whether a sender may message a recipient. Policy is
// per-recipient and resolved at call time — never cached — because
// relationships and settings can change between sends.
package gate

import (
	"context"
	"fmt"
	"strings"
)

// Policy is a recipient's direct-message policy, normalized to a typed value
// at the data-access boundary. Call sites never inspect raw policy data.
type Policy string

const (
	PolicyNone             Policy = "none"
	PolicyEveryone         Policy = "everyone"
	PolicyFriends          Policy = "friends"
	PolicyCommunityMembers Policy = "community_members"
)

// ParsePolicy normalizes a stored policy value. Unknown or empty values fall
// back to PolicyFriends, the most restrictive setting that still allows
// established contacts through.
func ParsePolicy(raw string) Policy {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyNone:
		return PolicyNone
	case PolicyEveryone:
		return PolicyEveryone
	case PolicyFriends:
		return PolicyFriends
	case PolicyCommunityMembers:
		return PolicyCommunityMembers
	default:
		return PolicyFriends
	}
}

// FriendshipService is the authoritative source of relationship edges.
type FriendshipService interface {
	// AreFriends reports whether an accepted friendship edge exists between
	// the two users, in either direction.
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// MembershipService is the authoritative source of community membership.
type MembershipService interface {
	// IsActiveMember reports whether the user is an active member of the
	// community.
	IsActiveMember(ctx context.Context, userID, communityID string) (bool, error)
	// ShareCommunity reports whether the two users have at least one active
	// community membership in common.
	ShareCommunity(ctx context.Context, a, b string) (bool, error)
}

// PolicySource resolves a user's current message policy.
type PolicySource interface {
	MessagePolicy(ctx context.Context, userID string) (Policy, error)
}

// Decision is the outcome of a policy check. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r string) Decision { return Decision{Allowed: false, Reason: r} }

// Gate evaluates message policy against the friendship and membership
// collaborators.
type Gate struct {
	policies    PolicySource
	friendships FriendshipService
	memberships MembershipService
}

// New creates a Gate over the given collaborators.
func New(policies PolicySource, friendships FriendshipService, memberships MembershipService) *Gate {
	return &Gate{
		policies:    policies,
		friendships: friendships,
		memberships: memberships,
	}
}

// CanMessage reports whether sender may direct-message recipient under the
// recipient's current policy. Self-messaging is always denied. The returned
// error is non-nil only for collaborator failures; a policy denial is a
// Decision, not an error.
func (g *Gate) CanMessage(ctx context.Context, sender, recipient string) (Decision, error) {
	if sender == recipient {
		return deny("cannot message yourself"), nil
	}

	policy, err := g.policies.MessagePolicy(ctx, recipient)
	if err != nil {
		return Decision{}, fmt.Errorf("gate: resolve policy for %s: %w", recipient, err)
	}

	switch policy {
	case PolicyEveryone:
		return allow(), nil

	case PolicyNone:
		return deny("recipient does not accept messages"), nil

	case PolicyFriends:
		ok, err := g.friendships.AreFriends(ctx, sender, recipient)
		if err != nil {
			return Decision{}, fmt.Errorf("gate: friendship lookup: %w", err)
		}
		if !ok {
			return deny("recipient only accepts messages from friends"), nil
		}
		return allow(), nil

	case PolicyCommunityMembers:
		ok, err := g.memberships.ShareCommunity(ctx, sender, recipient)
		if err != nil {
			return Decision{}, fmt.Errorf("gate: membership lookup: %w", err)
		}
		if !ok {
			return deny("recipient only accepts messages from community members"), nil
		}
		return allow(), nil

	default:
		return deny("recipient policy does not allow messages"), nil
	}
}

package gate

import (
	"context"
	"errors"
	"testing"
)

type fakePolicies map[string]Policy

func (f fakePolicies) MessagePolicy(_ context.Context, userID string) (Policy, error) {
	p, ok := f[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return p, nil
}

// fakeFriends stores directed pairs; AreFriends checks both directions so the
// fake mirrors a symmetric edge regardless of insertion order.
type fakeFriends map[[2]string]bool

func (f fakeFriends) AreFriends(_ context.Context, a, b string) (bool, error) {
	return f[[2]string{a, b}] || f[[2]string{b, a}], nil
}

type fakeMembers struct {
	members map[string]map[string]bool // community -> user set
}

func (f *fakeMembers) IsActiveMember(_ context.Context, userID, communityID string) (bool, error) {
	return f.members[communityID][userID], nil
}

func (f *fakeMembers) ShareCommunity(_ context.Context, a, b string) (bool, error) {
	for _, set := range f.members {
		if set[a] && set[b] {
			return true, nil
		}
	}
	return false, nil
}

func newTestGate(policies fakePolicies, friends fakeFriends, members *fakeMembers) *Gate {
	if friends == nil {
		friends = fakeFriends{}
	}
	if members == nil {
		members = &fakeMembers{members: map[string]map[string]bool{}}
	}
	return New(policies, friends, members)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		raw  string
		want Policy
	}{
		{"none", PolicyNone},
		{"everyone", PolicyEveryone},
		{"friends", PolicyFriends},
		{"community_members", PolicyCommunityMembers},
		{"EVERYONE", PolicyEveryone},
		{" friends ", PolicyFriends},
		{"", PolicyFriends},
		{"garbage", PolicyFriends},
	}
	for _, tt := range tests {
		if got := ParsePolicy(tt.raw); got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCanMessage_SelfDenied(t *testing.T) {
	g := newTestGate(fakePolicies{"u1": PolicyEveryone}, nil, nil)

	dec, err := g.CanMessage(context.Background(), "u1", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Error("self-messaging must be denied even under the everyone policy")
	}
}

func TestCanMessage_Policies(t *testing.T) {
	friends := fakeFriends{{"u1", "u2"}: true}
	members := &fakeMembers{members: map[string]map[string]bool{
		"g1": {"u1": true, "u5": true},
	}}

	policies := fakePolicies{
		"open":     PolicyEveryone,
		"closed":   PolicyNone,
		"friendly": PolicyFriends,
		"communal": PolicyCommunityMembers,
	}
	friends[[2]string{"u1", "friendly"}] = true
	members.members["g1"]["communal"] = true

	g := newTestGate(policies, friends, members)
	ctx := context.Background()

	tests := []struct {
		name      string
		sender    string
		recipient string
		allowed   bool
	}{
		{"everyone allows stranger", "u9", "open", true},
		{"none denies friend", "u1", "closed", false},
		{"friends allows friend", "u1", "friendly", true},
		{"friends denies stranger", "u9", "friendly", false},
		{"community allows co-member", "u1", "communal", true},
		{"community denies outsider", "u9", "communal", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := g.CanMessage(ctx, tt.sender, tt.recipient)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dec.Allowed != tt.allowed {
				t.Errorf("CanMessage(%s -> %s) = %v (%q), want %v",
					tt.sender, tt.recipient, dec.Allowed, dec.Reason, tt.allowed)
			}
			if !tt.allowed && dec.Reason == "" {
				t.Error("denial must carry a reason")
			}
			if tt.allowed && dec.Reason != "" {
				t.Errorf("allowed decision carries reason %q", dec.Reason)
			}
		})
	}
}

func TestCanMessage_DirectionMatters(t *testing.T) {
	// u1 accepts everyone; u2 accepts only friends. They are not friends:
	// u1 -> u2 is denied while u2 -> u1 is allowed.
	policies := fakePolicies{"u1": PolicyEveryone, "u2": PolicyFriends}
	g := newTestGate(policies, nil, nil)
	ctx := context.Background()

	dec, err := g.CanMessage(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Error("u1 -> u2 should be denied by u2's friends policy")
	}

	dec, err = g.CanMessage(ctx, "u2", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed {
		t.Errorf("u2 -> u1 should be allowed by u1's everyone policy: %q", dec.Reason)
	}
}

func TestCanMessage_CollaboratorError(t *testing.T) {
	g := newTestGate(fakePolicies{}, nil, nil) // every policy lookup fails

	_, err := g.CanMessage(context.Background(), "u1", "missing")
	if err == nil {
		t.Fatal("expected an error when the policy source fails")
	}
}

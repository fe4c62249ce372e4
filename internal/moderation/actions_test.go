package moderation

import (
	"testing"
	"time"
)

func mkAction(kind ActionKind, at time.Time) Action {
	return Action{
		CommunityID: "c1",
		ActorID:     "mod",
		TargetID:    "u1",
		Kind:        kind,
		CreatedAt:   at,
	}
}

func TestResolve_BanSequence(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ban1 := mkAction(KindBan, base)
	unban := mkAction(KindUnban, base.Add(time.Hour))
	ban2 := mkAction(KindBan, base.Add(2*time.Hour))

	tests := []struct {
		name    string
		actions []Action
		banned  bool
	}{
		{"no actions", nil, false},
		{"single ban", []Action{ban1}, true},
		{"ban then unban", []Action{ban1, unban}, false},
		{"ban unban ban", []Action{ban1, unban, ban2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Resolve(tt.actions, base.Add(3*time.Hour))
			if st.Banned != tt.banned {
				t.Errorf("Resolve(...).Banned = %v, want %v", st.Banned, tt.banned)
			}
		})
	}
}

func TestResolve_InsertionOrderIndependent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ban1 := mkAction(KindBan, base)
	unban := mkAction(KindUnban, base.Add(time.Hour))
	ban2 := mkAction(KindBan, base.Add(2*time.Hour))
	now := base.Add(3 * time.Hour)

	orders := [][]Action{
		{ban1, unban, ban2},
		{ban2, ban1, unban},
		{unban, ban2, ban1},
	}
	for i, actions := range orders {
		st := Resolve(actions, now)
		if !st.Banned {
			t.Errorf("order %d: Banned = false, want true (timestamps decide, not slice order)", i)
		}
	}

	// Drop the final ban: the unban at T+1h is now the latest, so any order
	// resolves to not banned.
	orders = [][]Action{
		{ban1, unban},
		{unban, ban1},
	}
	for i, actions := range orders {
		st := Resolve(actions, now)
		if st.Banned {
			t.Errorf("order %d: Banned = true, want false", i)
		}
	}
}

func TestResolve_Mutes(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := base.Add(10 * time.Minute)

	tempMute := mkAction(KindMute, base)
	tempMute.ExpiresAt = &expiry

	foreverMute := mkAction(KindMute, base.Add(time.Minute))

	t.Run("active temporary mute", func(t *testing.T) {
		st := Resolve([]Action{tempMute}, base.Add(5*time.Minute))
		if !st.Muted {
			t.Fatal("expected muted before expiry")
		}
		if st.MuteExpiresAt == nil || !st.MuteExpiresAt.Equal(expiry) {
			t.Errorf("MuteExpiresAt = %v, want %v", st.MuteExpiresAt, expiry)
		}
	})

	t.Run("expired mute self-clears", func(t *testing.T) {
		st := Resolve([]Action{tempMute}, base.Add(11*time.Minute))
		if st.Muted {
			t.Error("expected mute expired")
		}
	})

	t.Run("indefinite mute outlasts clock", func(t *testing.T) {
		st := Resolve([]Action{foreverMute}, base.Add(1000*time.Hour))
		if !st.Muted {
			t.Error("expected indefinite mute active")
		}
		if st.MuteExpiresAt != nil {
			t.Errorf("MuteExpiresAt = %v, want nil", st.MuteExpiresAt)
		}
	})

	t.Run("latest mute wins", func(t *testing.T) {
		// The later indefinite mute supersedes the earlier temporary one.
		st := Resolve([]Action{foreverMute, tempMute}, base.Add(11*time.Minute))
		if !st.Muted {
			t.Error("expected later indefinite mute to win")
		}
	})

	t.Run("mute independent of ban", func(t *testing.T) {
		ban := mkAction(KindBan, base)
		st := Resolve([]Action{ban, tempMute}, base.Add(5*time.Minute))
		if !st.Banned || !st.Muted {
			t.Errorf("got %+v, want banned and muted", st)
		}
	})
}

func TestResolve_IgnoresDeletes(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	del := mkAction(KindDelete, base)
	st := Resolve([]Action{del}, base.Add(time.Minute))
	if st.Banned || st.Muted {
		t.Errorf("delete actions must not affect standing: %+v", st)
	}
}

package moderation

import "time"

// ActionKind enumerates the persisted moderation action kinds.
type ActionKind string

const (
	KindBan    ActionKind = "ban"
	KindUnban  ActionKind = "unban"
	KindMute   ActionKind = "mute"
	KindDelete ActionKind = "delete"
)

// Action is one immutable moderation record. Current ban/mute state is never
// stored; it is derived by comparing the most recent action of each relevant
// kind by timestamp, independent of storage insertion order.
type Action struct {
	ID          string
	CommunityID string
	ActorID     string
	TargetID    string
	Kind        ActionKind
	Reason      string
	MessageID   string     // set for delete actions
	ExpiresAt   *time.Time // set for temporary mutes
	CreatedAt   time.Time
}

// State is the derived moderation standing of one user in one community.
type State struct {
	Banned        bool
	Muted         bool
	MuteExpiresAt *time.Time // nil for indefinite mutes
}

// Resolve derives the effective ban/mute state from a user's action history
// at the given instant. Latest timestamp wins for each kind: a ban followed
// by a later unban means not banned; a still-later ban means banned again.
// A mute whose expiry has passed resolves as not muted — expired mutes
// self-clear lazily at the next resolution, they are never swept eagerly.
func Resolve(actions []Action, now time.Time) State {
	var (
		lastBanState time.Time
		banned       bool
		lastMute     *Action
	)

	for i := range actions {
		a := &actions[i]
		switch a.Kind {
		case KindBan:
			if a.CreatedAt.After(lastBanState) {
				lastBanState = a.CreatedAt
				banned = true
			}
		case KindUnban:
			if a.CreatedAt.After(lastBanState) {
				lastBanState = a.CreatedAt
				banned = false
			}
		case KindMute:
			if lastMute == nil || a.CreatedAt.After(lastMute.CreatedAt) {
				lastMute = a
			}
		}
	}

	st := State{Banned: banned}
	if lastMute != nil {
		if lastMute.ExpiresAt == nil {
			st.Muted = true
		} else if lastMute.ExpiresAt.After(now) {
			st.Muted = true
			st.MuteExpiresAt = lastMute.ExpiresAt
		}
	}
	return st
}

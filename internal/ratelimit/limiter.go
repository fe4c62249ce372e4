// Package ratelimit provides Redis-backed rate limiting using a ZSET sliding
// window. Each send is recorded with its timestamp as the score; a check
// counts entries inside the trailing window, so the limit is enforced over
// a true sliding 60 seconds rather than fixed buckets.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number
// of events allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:room:")
	Limit  int           // max count in the window
	Window time.Duration // trailing window
}

// RuleRoomMessage allows 10 messages per trailing 60 seconds per (user, room).
var RuleRoomMessage = Rule{Key: "rl:room:", Limit: 10, Window: 60 * time.Second}

// Limiter performs sliding-window checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// RoomKey builds the identifier for per-(user, room) limiting.
func RoomKey(userID, roomID string) string {
	return userID + ":" + roomID
}

// Allow records the event and checks it against the rule's limit in one
// atomic step. The entry is written before counting, inside a single
// MULTI/EXEC pipeline, so two concurrent callers each count the other's
// entry and the cap holds under races. A violating event takes its
// tentative entry back, so a rejected send does not extend the window.
//
// On Redis errors the method fails open (returns true) so that a Redis
// outage does not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-rule.Window).UnixMicro(), 10)
	member := uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMicro()),
		Member: member,
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[ratelimit] redis pipeline error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// The count includes this call's own entry.
	if int(countCmd.Val()) > rule.Limit {
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			log.Printf("[ratelimit] redis ZREM error key=%s: %v", key, err)
		}
		return false, nil
	}
	return true, nil
}

// AllowRoom applies RuleRoomMessage to the (user, room) pair. It is the
// limiter surface the message pipeline consumes.
func (l *Limiter) AllowRoom(ctx context.Context, userID, roomID string) (bool, error) {
	return l.Allow(ctx, RoomKey(userID, roomID), RuleRoomMessage)
}

// Remaining returns the number of events the identifier has left in the
// current window. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier
	cutoff := strconv.FormatInt(time.Now().Add(-rule.Window).UnixMicro(), 10)

	count, err := l.client.ZCount(ctx, key, cutoff, "+inf").Result()
	if err != nil {
		log.Printf("[ratelimit] redis ZCOUNT error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

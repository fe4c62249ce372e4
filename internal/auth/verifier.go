// Package auth validates opaque connection credentials. Token issuance is
// owned by the account service; this package only resolves a presented
// credential to the identity it was issued for. Grants live in Redis under
// auth:token:<credential> hashes written by the issuer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenPrefix is the Redis key prefix for credential grants.
const TokenPrefix = "auth:token:"

// ErrInvalidCredential is returned for unknown or expired credentials.
var ErrInvalidCredential = errors.New("auth: invalid or expired credential")

// Identity is the authenticated principal a credential resolves to.
type Identity struct {
	UserID   string `redis:"user_id"`
	Username string `redis:"username"`
}

// Verifier resolves a credential to an identity. A failed verification
// refuses the connection attempt.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// RedisVerifier reads credential grants from Redis.
type RedisVerifier struct {
	client *redis.Client
}

// NewRedisVerifier creates a verifier over the given Redis client.
func NewRedisVerifier(client *redis.Client) *RedisVerifier {
	return &RedisVerifier{client: client}
}

// Verify looks up the credential grant. A missing or empty hash means the
// credential is unknown or has expired (the issuer sets a TTL on grants).
func (v *RedisVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrInvalidCredential
	}

	var id Identity
	err := v.client.HGetAll(ctx, TokenPrefix+credential).Scan(&id)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: credential lookup: %w", err)
	}
	if id.UserID == "" {
		return Identity{}, ErrInvalidCredential
	}
	return id, nil
}

// StaticVerifier maps fixed credentials to identities. Used in tests and
// local development where no issuer is running.
type StaticVerifier map[string]Identity

// Verify implements Verifier.
func (v StaticVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	id, ok := v[credential]
	if !ok {
		return Identity{}, ErrInvalidCredential
	}
	return id, nil
}

// Grant writes a credential grant with a TTL. It exists for integration
// tests and local tooling; production grants are written by the issuer.
func Grant(ctx context.Context, client *redis.Client, credential string, id Identity, ttl time.Duration) error {
	key := TokenPrefix + credential
	pipe := client.Pipeline()
	pipe.HSet(ctx, key, "user_id", id.UserID, "username", id.Username)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

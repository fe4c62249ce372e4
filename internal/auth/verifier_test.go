package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{
		"good-token": {UserID: "u1", Username: "alice"},
	}
	ctx := context.Background()

	id, err := v.Verify(ctx, "good-token")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "u1" || id.Username != "alice" {
		t.Errorf("identity = %+v", id)
	}

	for _, cred := range []string{"unknown", ""} {
		if _, err := v.Verify(ctx, cred); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidCredential", cred, err)
		}
	}
}

// newTestRedis connects to a local Redis instance; tests that call it skip
// when none is running.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, TokenPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return client
}

func TestRedisVerifier_GrantAndVerify(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	v := NewRedisVerifier(client)

	id := Identity{UserID: "u_test", Username: "tester"}
	if err := Grant(ctx, client, "test_cred", id, time.Minute); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	got, err := v.Verify(ctx, "test_cred")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != id {
		t.Errorf("identity = %+v, want %+v", got, id)
	}
}

func TestRedisVerifier_UnknownCredential(t *testing.T) {
	client := newTestRedis(t)
	v := NewRedisVerifier(client)

	_, err := v.Verify(context.Background(), "test_never_granted")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestRedisVerifier_ExpiredCredential(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	v := NewRedisVerifier(client)

	id := Identity{UserID: "u_exp", Username: "expiring"}
	if err := Grant(ctx, client, "test_expiring", id, 50*time.Millisecond); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	_, err := v.Verify(ctx, "test_expiring")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err after expiry = %v, want ErrInvalidCredential", err)
	}
}

func TestRedisVerifier_EmptyCredential(t *testing.T) {
	v := NewRedisVerifier(nil)

	_, err := v.Verify(context.Background(), "")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
}

package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisRevoker(t *testing.T) (*miniredis.Miniredis, *RedisTokenRevoker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisTokenRevoker(client)
}

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", 20*time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked token, revoked=%v err=%v", revoked, err)
	}
	time.Sleep(40 * time.Millisecond)
	revoked, err = r.IsRevoked("jti-1")
	if err != nil || revoked {
		t.Fatalf("expected revocation to expire, revoked=%v err=%v", revoked, err)
	}
}

func TestMemoryTokenRevokerIgnoresNonPositiveTTL(t *testing.T) {
	r := NewMemoryTokenRevoker()
	_ = r.Revoke("jti-2", 0)
	if revoked, _ := r.IsRevoked("jti-2"); revoked {
		t.Fatalf("zero ttl must not revoke")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr, r := newRedisRevoker(t)

	if err := r.Revoke("jti-3", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-3")
	if err != nil || !revoked {
		t.Fatalf("expected revoked token, revoked=%v err=%v", revoked, err)
	}
	mr.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked("jti-3")
	if err != nil || revoked {
		t.Fatalf("expected key to expire, revoked=%v err=%v", revoked, err)
	}
}

func TestRedisTokenRevokerReportsRedisErrors(t *testing.T) {
	mr, r := newRedisRevoker(t)
	mr.Close()
	if _, err := r.IsRevoked("jti-4"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

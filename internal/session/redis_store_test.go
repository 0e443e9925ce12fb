package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ccssmnn/alkalye-sub002/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return rs, mr
}

func TestNewRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer rs.Close()

	if err := rs.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	defer rs.Close()
	defer mr.Close()

	ctx := context.Background()
	account := store.Account{ID: "acc_123", DisplayName: "Ada", Email: "ada@example.com"}
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := rs.SaveRefreshSession(ctx, "test-token-hash", account, expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := rs.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("expected account ID %s, got %s", account.ID, got.ID)
	}
	if got.DisplayName != account.DisplayName {
		t.Errorf("expected display name %s, got %s", account.DisplayName, got.DisplayName)
	}
	if got.Email != account.Email {
		t.Errorf("expected email %s, got %s", account.Email, got.Email)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	defer rs.Close()
	defer mr.Close()

	ctx := context.Background()
	account := store.Account{ID: "acc_456"}

	expiresAt := time.Now().Add(1 * time.Millisecond)
	if err := rs.SaveRefreshSession(ctx, "expired-token", account, expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	mr.FastForward(2 * time.Millisecond)

	if _, err := rs.LookupRefreshSession(ctx, "expired-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for expired token, got %v", err)
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	defer rs.Close()
	defer mr.Close()

	if _, err := rs.LookupRefreshSession(context.Background(), "non-existent-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	defer rs.Close()
	defer mr.Close()

	ctx := context.Background()
	account := store.Account{ID: "acc_789"}
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := rs.SaveRefreshSession(ctx, "token-to-revoke", account, expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Lookup before revoke failed: %v", err)
	}

	if err := rs.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}

	if _, err := rs.LookupRefreshSession(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}
}

func TestRevokeNonExistentSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	defer rs.Close()
	defer mr.Close()

	if err := rs.RevokeRefreshSession(context.Background(), "non-existent-token"); err != nil {
		t.Errorf("RevokeRefreshSession for non-existent token failed: %v", err)
	}
}

func TestAccessTokenRevocation(t *testing.T) {
	rs, mr := setupTestRedis(t)
	defer rs.Close()
	defer mr.Close()

	ctx := context.Background()

	revoked, err := rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("fresh jti should not be revoked")
	}

	if err := rs.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}

	revoked, err = rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked failed: %v", err)
	}
	if !revoked {
		t.Error("jti should be revoked")
	}

	// The blacklist entry expires with the token itself.
	mr.FastForward(2 * time.Hour)
	revoked, err = rs.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked after expiry failed: %v", err)
	}
	if revoked {
		t.Error("expired jti should no longer be reported revoked")
	}
}

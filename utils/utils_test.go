package utils

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewNonceSigner("secret", time.Hour).WithClock(func() time.Time { return now })

	tok, err := s.Issue(UploadNonceAction)
	require.NoError(t, err)
	assert.True(t, s.VerifyNonce(context.Background(), tok))
	assert.False(t, s.Check(tok, "other_action"))
	assert.False(t, s.VerifyNonce(context.Background(), ""))
	assert.False(t, s.VerifyNonce(context.Background(), "garbage"))

	other := NewNonceSigner("different", time.Hour).WithClock(func() time.Time { return now })
	assert.False(t, other.VerifyNonce(context.Background(), tok))

	now = now.Add(2 * time.Hour)
	assert.False(t, s.VerifyNonce(context.Background(), tok), "expired nonce must fail")
}

func TestTokenIssuer(t *testing.T) {
	i := NewTokenIssuer("secret")
	tok, err := i.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := i.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = NewTokenIssuer("other").ParseToken(tok)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "s3cret"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Upload a photo", SanitizeText("  <b>Upload</b> a photo<script>x()</script> "))
	assert.Equal(t, "fish & chips", SanitizeText("fish & chips"))
	assert.Contains(t, Sanitize(`<p onclick="x()">hi</p>`), "<p>hi</p>")
}

func TestRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := NewRedisClient(mr.Addr(), "", 0)
	ctx := context.Background()

	first, err := AcquireLock(ctx, rc, "lock:test", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(ctx, rc, "lock:test", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// A stale owner must not release someone else's lock.
	stale := &RedisLock{rc: rc, key: "lock:test", token: "not-the-owner"}
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("lock:test"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("lock:test"))

	again, err := AcquireLock(ctx, rc, "lock:test", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestCacheJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := NewRedisClient(mr.Addr(), "", 0)
	ctx := context.Background()

	var out map[string]int
	assert.False(t, CacheGetJSON(ctx, rc, "k", &out))
	CacheSetJSON(ctx, rc, "k", map[string]int{"a": 1}, time.Minute)
	assert.True(t, CacheGetJSON(ctx, rc, "k", &out))
	assert.Equal(t, 1, out["a"])
	CacheDelete(ctx, rc, "k")
	assert.False(t, CacheGetJSON(ctx, rc, "k", &out))

	// nil client is a permanent miss
	assert.False(t, CacheGetJSON(ctx, nil, "k", &out))
}

func TestBuildMessage(t *testing.T) {
	m := &Mailer{host: "smtp.example.com", port: 587, from: "shop@example.com", fromName: "Tienda Ñ"}
	raw := string(m.buildMessage(Mail{To: "c@example.com", Subject: "Order 1", Body: "<p>x</p>", HTML: true}))
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, raw, "=?UTF-8?b?")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>x</p>"))

	assert.ErrorIs(t, (&Mailer{}).Send(Mail{To: "x"}), ErrMailNotConfigured)
}

func TestTokenBlacklist(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	mem := NewTokenBlacklist(nil)
	assert.False(t, mem.IsRevoked(ctx, "tok"))
	mem.Revoke(ctx, "tok", exp)
	assert.True(t, mem.IsRevoked(ctx, "tok"))
	mem.Revoke(ctx, "old", time.Now().Add(-time.Minute))
	assert.False(t, mem.IsRevoked(ctx, "old"))

	mr := miniredis.RunT(t)
	shared := NewTokenBlacklist(NewRedisClient(mr.Addr(), "", 0))
	shared.Revoke(ctx, "tok", exp)
	other := NewTokenBlacklist(NewRedisClient(mr.Addr(), "", 0))
	assert.True(t, other.IsRevoked(ctx, "tok"), "revocations are visible to other replicas")
}

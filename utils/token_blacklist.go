package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "aiep:jwt:blacklist:"

// TokenBlacklist remembers revoked admin tokens until they expire. Redis is preferred so every
// replica sees a logout; without it entries live in process memory.
type TokenBlacklist struct {
	rc  *redis.Client
	mu  sync.RWMutex
	mem map[string]time.Time
	now func() time.Time
}

// NewTokenBlacklist returns a blacklist. rc may be nil.
func NewTokenBlacklist(rc *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rc: rc, mem: map[string]time.Time{}, now: time.Now}
}

// Revoke stores token until expiresAt.
func (b *TokenBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return
	}
	key := tokenDigest(token)
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := b.rc.Set(ctx, blacklistPrefix+key, "1", ttl).Err(); err == nil {
			return
		}
	}
	b.mu.Lock()
	b.mem[key] = expiresAt
	b.mu.Unlock()
}

// IsRevoked reports whether token was revoked before its natural expiration.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string) bool {
	key := tokenDigest(token)
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		n, err := b.rc.Exists(ctx, blacklistPrefix+key).Result()
		if err == nil && n > 0 {
			return true
		}
		// Fail open on redis errors to avoid locking admins out; memory still applies
	}
	b.mu.RLock()
	exp, ok := b.mem[key]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	if b.now().After(exp) {
		b.mu.Lock()
		delete(b.mem, key)
		b.mu.Unlock()
		return false
	}
	return true
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

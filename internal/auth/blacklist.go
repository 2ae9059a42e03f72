package auth

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/identity-service/internal/model"
)

// BlacklistFallback is the durable store behind the Redis layer,
// implemented by repository.BlacklistRepo.  It honors the same logical
// contract: an entry exists until its natural expiry.
type BlacklistFallback interface {
	Add(ctx context.Context, entry model.BlacklistedToken) error
	Contains(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Blacklist tracks revoked token identifiers until their natural expiry.
// Redis is the preferred backend: entries are SET with a TTL equal to
// the token's remaining lifetime, so expiry is O(1) and the set never
// grows unbounded.  When the client is nil or a call fails, the durable
// fallback takes over with the same contract and a warning is logged.
//
// The check never fails open: if neither backend can answer, the token
// is treated as blacklisted.
type Blacklist struct {
	rdb      *redis.Client // may be nil when Redis is unavailable
	fallback BlacklistFallback
	prefix   string
}

// NewBlacklist builds a blacklist over an optional Redis client and the
// durable fallback store.
func NewBlacklist(rdb *redis.Client, fallback BlacklistFallback) *Blacklist {
	return &Blacklist{rdb: rdb, fallback: fallback, prefix: "bl:jti:"}
}

// Add records a revoked token identifier.  The entry lives until the
// token's own expiry; anything already past expiry is dropped since the
// signature check rejects it regardless.
func (b *Blacklist) Add(ctx context.Context, entry model.BlacklistedToken) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if b.rdb != nil {
		if err := b.rdb.Set(ctx, b.prefix+entry.JTI, entry.TokenType, ttl).Err(); err == nil {
			return nil
		} else {
			log.Printf("blacklist: redis set failed, falling back to store: %v", err)
		}
	}
	return b.fallback.Add(ctx, entry)
}

// Contains reports whether a token identifier has been revoked.  Both
// backends are consulted: Redis first for the fast path, then the
// durable store, which may hold entries written while Redis was down.
// Any backend error reports the token as blacklisted together with the
// error, so a broken blacklist can never admit a revoked token.
func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	if b.rdb != nil {
		n, err := b.rdb.Exists(ctx, b.prefix+jti).Result()
		if err != nil {
			log.Printf("blacklist: redis lookup failed, degraded to store: %v", err)
		} else if n > 0 {
			return true, nil
		}
	}
	found, err := b.fallback.Contains(ctx, jti)
	if err != nil {
		// Fail closed.
		return true, err
	}
	return found, nil
}

// PurgeExpired removes durable entries whose tokens have expired.  Redis
// entries expire on their own.  Called from the maintenance loop.
func (b *Blacklist) PurgeExpired(ctx context.Context) (int64, error) {
	return b.fallback.PurgeExpired(ctx, time.Now().UTC())
}

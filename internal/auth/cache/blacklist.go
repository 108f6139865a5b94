package cache

import (
	"context"
	"time"

	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// blacklistPrefix namespaces revoked token keys.
const blacklistPrefix = "bl_"

// Blacklist records revoked access tokens until their natural expiry. A
// blacklisted token fails the auth gate even though its signature is still
// valid.
type Blacklist struct {
	cache *Cache
}

func NewBlacklist(c *Cache) *Blacklist {
	return &Blacklist{cache: c}
}

// Add revokes a token for the remainder of its lifetime. Tokens that have
// already expired need no entry, verification rejects them anyway.
func (b *Blacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.cache.rdb.Set(ctx, blacklistPrefix+token, "true", ttl).Err()
}

// IsBlacklisted reports whether the token has been revoked. When the cache
// cannot be reached the token is treated as revoked, a cache outage must
// never let a revoked token back in.
func (b *Blacklist) IsBlacklisted(ctx context.Context, token string) bool {
	n, err := b.cache.rdb.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		slogx.FromContext(ctx).Error("blacklist lookup failed, treating token as revoked", "err", err)
		return true
	}
	return n > 0
}

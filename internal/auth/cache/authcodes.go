package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
)

// authCodePrefix namespaces pending authorization code keys.
const authCodePrefix = "auth_code:"

// ErrCodeNotFound covers expired, already-consumed and never-issued codes
// alike; callers cannot tell the difference and should not try.
var ErrCodeNotFound = errors.New("cache: authorization code not found")

// AuthCodes stores pending authorization code grants between the login
// redirect and the token exchange. Codes are strictly one-time: consumption
// and deletion are a single Redis command.
type AuthCodes struct {
	cache *Cache
	ttl   time.Duration
}

func NewAuthCodes(c *Cache, ttl time.Duration) *AuthCodes {
	return &AuthCodes{cache: c, ttl: ttl}
}

// Store caches the grant payload under the opaque code.
func (a *AuthCodes) Store(ctx context.Context, code string, grant domain.AuthCodeGrant) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("cache: marshal grant: %w", err)
	}
	return a.cache.rdb.Set(ctx, authCodePrefix+code, payload, a.ttl).Err()
}

// Exists reports whether a code is still pending without consuming it.
// Diagnostics only; redemption must go through Consume.
func (a *AuthCodes) Exists(ctx context.Context, code string) bool {
	n, err := a.cache.rdb.Exists(ctx, authCodePrefix+code).Result()
	return err == nil && n > 0
}

// Consume atomically fetches and deletes the grant. GETDEL guarantees that
// two racing exchanges of the same code cannot both succeed.
func (a *AuthCodes) Consume(ctx context.Context, code string) (domain.AuthCodeGrant, error) {
	payload, err := a.cache.rdb.GetDel(ctx, authCodePrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return domain.AuthCodeGrant{}, ErrCodeNotFound
	}
	if err != nil {
		return domain.AuthCodeGrant{}, err
	}

	var grant domain.AuthCodeGrant
	if err := json.Unmarshal([]byte(payload), &grant); err != nil {
		return domain.AuthCodeGrant{}, fmt.Errorf("cache: unmarshal grant: %w", err)
	}
	return grant, nil
}

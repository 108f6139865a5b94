package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/adminauth/internal/auth/cache"
	"github.com/halcyonlabs/adminauth/internal/auth/domain"
)

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return cache.NewFromClient(rdb), mr
}

func TestBlacklistAddAndCheck(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	bl := cache.NewBlacklist(c)
	ctx := context.Background()

	require.False(t, bl.IsBlacklisted(ctx, "token-a"))

	require.NoError(t, bl.Add(ctx, "token-a", 15*time.Minute))
	require.True(t, bl.IsBlacklisted(ctx, "token-a"))
	require.False(t, bl.IsBlacklisted(ctx, "token-b"))

	// The entry lapses with the token's own lifetime.
	mr.FastForward(16 * time.Minute)
	require.False(t, bl.IsBlacklisted(ctx, "token-a"))
}

func TestBlacklistSkipsExpiredTokens(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	bl := cache.NewBlacklist(c)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, "already-dead", -time.Minute))
	require.Zero(t, len(mr.Keys()))
}

func TestBlacklistFailsClosed(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	bl := cache.NewBlacklist(c)

	mr.Close()
	require.True(t, bl.IsBlacklisted(context.Background(), "any-token"))
}

func TestAuthCodeStoreAndConsume(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	codes := cache.NewAuthCodes(c, 10*time.Minute)
	ctx := context.Background()

	grant := domain.AuthCodeGrant{
		UserID:      "user-1",
		ClientID:    "admin-panel",
		RedirectURI: "https://app.example.com/callback",
		Nonce:       "n-123",
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, codes.Store(ctx, "code-abc", grant))

	// Peeking does not burn the code.
	require.True(t, codes.Exists(ctx, "code-abc"))
	require.False(t, codes.Exists(ctx, "code-xyz"))
	require.True(t, codes.Exists(ctx, "code-abc"))

	got, err := codes.Consume(ctx, "code-abc")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, "admin-panel", got.ClientID)
	require.Equal(t, "n-123", got.Nonce)

	// One-time: second consumption fails and the code is gone.
	_, err = codes.Consume(ctx, "code-abc")
	require.ErrorIs(t, err, cache.ErrCodeNotFound)
	require.False(t, codes.Exists(ctx, "code-abc"))
}

func TestAuthCodeExpires(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	codes := cache.NewAuthCodes(c, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, codes.Store(ctx, "code-abc", domain.AuthCodeGrant{UserID: "user-1"}))

	mr.FastForward(11 * time.Minute)

	_, err := codes.Consume(ctx, "code-abc")
	require.ErrorIs(t, err, cache.ErrCodeNotFound)
}

func TestAuthCodeUnknown(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	codes := cache.NewAuthCodes(c, 10*time.Minute)

	_, err := codes.Consume(context.Background(), "never-issued")
	require.ErrorIs(t, err, cache.ErrCodeNotFound)
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/cache"
	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// TokenService mints access/refresh token pairs and tears them down again.
// The refresh token is opaque and lives in a single slot on the user row, so
// issuing a pair for a user kills whatever session they had before.
type TokenService struct {
	Signer     *jwtx.Signer
	Verifier   *jwtx.Verifier
	Store      store.Store
	Blacklist  *cache.Blacklist
	RefreshTTL time.Duration
}

// IssuePair signs a fresh access token and installs a new refresh token in
// the user's slot. audience is the requesting client id, empty for direct
// API logins.
func (s *TokenService) IssuePair(ctx context.Context, user domain.User, audience string) (domain.TokenPair, error) {
	access, err := s.Signer.SignAccessToken(user.ID, audience)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSizeRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	expires := time.Now().Add(s.RefreshTTL)
	if err := s.Store.Users().SetRefreshToken(ctx, user.ID, cryptox.FingerprintToken(refresh), expires); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Signer.AccessTTL().Seconds()),
	}, nil
}

// Refresh rotates the presented refresh token and returns a new pair along
// with the user it belongs to. The rotation is a compare-and-swap on the
// slot: when two requests race with the same token only one wins, the loser
// gets ErrRefreshConflict and the session has to log in again.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, audience string) (domain.TokenPair, domain.User, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	hash := cryptox.FingerprintToken(refreshToken)
	user, err := s.Store.Users().GetUserByRefreshTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, domain.User{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, domain.User{}, err
	}

	if !user.IsActive {
		return domain.TokenPair{}, domain.User{}, ErrUserDisabled
	}
	if !user.HasActiveRefreshToken(now) {
		return domain.TokenPair{}, domain.User{}, ErrInvalidRefresh
	}

	newRefresh, err := cryptox.GenerateToken(cryptox.TokenSizeRefresh)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	ok, err := s.Store.Users().RotateRefreshToken(ctx, user.ID,
		hash, cryptox.FingerprintToken(newRefresh), now.Add(s.RefreshTTL))
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	if !ok {
		l.Warn("refresh rotation lost race", slog.String("user_id", user.ID))
		return domain.TokenPair{}, domain.User{}, ErrRefreshConflict
	}

	access, err := s.Signer.SignAccessToken(user.ID, audience)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	pair := domain.TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Signer.AccessTTL().Seconds()),
	}
	return pair, user, nil
}

// RevokeRefreshToken clears the slot holding the presented token. Unknown
// tokens are not an error, revocation is idempotent.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	hash := cryptox.FingerprintToken(refreshToken)
	user, err := s.Store.Users().GetUserByRefreshTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.Users().ClearRefreshToken(ctx, user.ID)
}

// BlacklistAccessToken revokes an access token for the rest of its lifetime
// and clears the subject's refresh slot, so the whole session has to log in
// again. Tokens that fail verification need no blacklist entry.
func (s *TokenService) BlacklistAccessToken(ctx context.Context, raw string) error {
	claims, err := s.Verifier.Verify(raw)
	if err != nil {
		return nil
	}
	if err := s.Blacklist.Add(ctx, raw, claims.RemainingLifetime(time.Now())); err != nil {
		return err
	}
	if err := s.Store.Users().ClearRefreshToken(ctx, claims.Subject); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

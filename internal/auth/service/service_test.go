package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/adminauth/internal/auth/cache"
	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/internal/auth/store/drivers/sqlite"
	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/idx"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
)

const testIssuer = "https://auth.test.local"

// recordingSender captures outgoing mail for assertions.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (r *recordingSender) Send(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (r *recordingSender) last(t *testing.T) sentMail {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1]
}

// linkToken pulls the token out of an emailed link.
func linkToken(t *testing.T, body string) string {
	t.Helper()
	i := strings.Index(body, "token=")
	require.GreaterOrEqual(t, i, 0)
	token := body[i+len("token="):]
	if j := strings.IndexAny(token, "\n\r "); j >= 0 {
		token = token[:j]
	}
	return token
}

type fixture struct {
	store  store.Store
	mr     *miniredis.Miniredis
	mail   *recordingSender
	tokens *service.TokenService
	users  *service.UserService
	oauth  *service.OAuth2Service
	roleID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", idx.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.NewFromClient(rdb)

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	signer, err := jwtx.NewSigner(pemKey, testIssuer, 15*time.Minute)
	require.NoError(t, err)

	tokens := &service.TokenService{
		Signer:     signer,
		Verifier:   jwtx.VerifierForSigner(signer),
		Store:      st,
		Blacklist:  cache.NewBlacklist(c),
		RefreshTTL: 7 * 24 * time.Hour,
	}

	sender := &recordingSender{}
	users := &service.UserService{
		Store:    st,
		Tokens:   tokens,
		Mail:     sender,
		BaseURL:  "https://admin.example.com",
		ResetTTL: 10 * time.Minute,
		SetupTTL: 24 * time.Hour,
	}

	oauth := &service.OAuth2Service{
		Users:  users,
		Tokens: tokens,
		Codes:  cache.NewAuthCodes(c, 10*time.Minute),
		Clients: map[string]service.ClientConfig{
			"admin-panel": {
				ID:           "admin-panel",
				RedirectURIs: []string{"https://app.example.com/callback"},
			},
		},
		CodeTTL: 10 * time.Minute,
	}

	role := domain.Role{ID: idx.New().String(), Name: "admin"}
	require.NoError(t, st.Roles().CreateRole(context.Background(), role))

	return &fixture{store: st, mr: mr, mail: sender, tokens: tokens, users: users, oauth: oauth, roleID: role.ID}
}

func (f *fixture) signup(t *testing.T, email, username, password string) domain.User {
	t.Helper()
	u, err := f.users.Signup(context.Background(), email, username, "Test User", password, f.roleID)
	require.NoError(t, err)
	return u
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@example.com", "alpha", "correct-horse")

	got, err := f.users.Authenticate(ctx, "a@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "alpha", got.Username)

	// Username works as identifier too.
	got, err = f.users.Authenticate(ctx, "alpha", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", got.Email)

	_, err = f.users.Authenticate(ctx, "a@example.com", "wrong")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.users.Authenticate(ctx, "nobody@example.com", "whatever")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestAuthenticateDisabledUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	require.NoError(t, f.users.SetActive(ctx, u.ID, false))

	_, err := f.users.Authenticate(ctx, "a@example.com", "correct-horse")
	require.ErrorIs(t, err, service.ErrUserDisabled)
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.users.Signup(context.Background(), "a@example.com", "alpha", "", "short", f.roleID)
	require.ErrorIs(t, err, service.ErrPasswordTooWeak)
}

func TestSignupDuplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.signup(t, "a@example.com", "alpha", "correct-horse")

	_, err := f.users.Signup(context.Background(), "a@example.com", "beta", "", "correct-horse", f.roleID)
	require.ErrorIs(t, err, service.ErrDuplicateUser)
}

func TestIssuePairAndRefresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	pair, err := f.tokens.IssuePair(ctx, u, "")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.EqualValues(t, 900, pair.ExpiresIn)

	claims, err := f.tokens.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)

	next, _, err := f.tokens.Refresh(ctx, pair.RefreshToken, "")
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The rotated-out token is dead.
	_, _, err = f.tokens.Refresh(ctx, pair.RefreshToken, "")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestIssuePairOverwritesOldSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	first, err := f.tokens.IssuePair(ctx, u, "")
	require.NoError(t, err)
	second, err := f.tokens.IssuePair(ctx, u, "")
	require.NoError(t, err)

	// Only the newest session's refresh token works.
	_, _, err = f.tokens.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
	_, _, err = f.tokens.Refresh(ctx, second.RefreshToken, "")
	require.NoError(t, err)
}

func TestRefreshDisabledUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	pair, err := f.tokens.IssuePair(ctx, u, "")
	require.NoError(t, err)

	require.NoError(t, f.store.Users().SetUserActive(ctx, u.ID, false))

	_, _, err = f.tokens.Refresh(ctx, pair.RefreshToken, "")
	require.ErrorIs(t, err, service.ErrUserDisabled)
}

func TestLogoutKillsBothTokens(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	pair, err := f.tokens.IssuePair(ctx, u, "")
	require.NoError(t, err)

	require.NoError(t, f.users.Logout(ctx, u.ID, pair.AccessToken))

	_, _, err = f.tokens.Refresh(ctx, pair.RefreshToken, "")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
	require.True(t, f.tokens.Blacklist.IsBlacklisted(ctx, pair.AccessToken))
}

func TestForgotAndResetPassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	pair, err := f.tokens.IssuePair(ctx, u, "")
	require.NoError(t, err)

	require.NoError(t, f.users.ForgotPassword(ctx, "a@example.com"))
	token := linkToken(t, f.mail.last(t).Body)

	require.NoError(t, f.users.ResetPassword(ctx, token, "new-password-1"))

	// New password works, old one does not, old session is dead.
	_, err = f.users.Authenticate(ctx, "a@example.com", "new-password-1")
	require.NoError(t, err)
	_, err = f.users.Authenticate(ctx, "a@example.com", "correct-horse")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, _, err = f.tokens.Refresh(ctx, pair.RefreshToken, "")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// Reset tokens are one-time.
	require.ErrorIs(t, f.users.ResetPassword(ctx, token, "another-password"),
		service.ErrInvalidResetToken)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.users.ForgotPassword(context.Background(), "ghost@example.com"))
	require.Empty(t, f.mail.sent)
}

func TestUpdatePassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	require.ErrorIs(t, f.users.UpdatePassword(ctx, u.ID, "wrong", "new-password-1"),
		service.ErrInvalidCredentials)

	require.NoError(t, f.users.UpdatePassword(ctx, u.ID, "correct-horse", "new-password-1"))

	_, err := f.users.Authenticate(ctx, "a@example.com", "new-password-1")
	require.NoError(t, err)

	got, err := f.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PasswordChangedAt)
}

func TestUpdatePasswordRejectsReuse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	require.ErrorIs(t, f.users.UpdatePassword(ctx, u.ID, "correct-horse", "correct-horse"),
		service.ErrPasswordReused)
}

func TestAuthenticateStampsLastLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")
	require.Nil(t, u.LastLogin)

	_, err := f.users.Authenticate(ctx, "a@example.com", "correct-horse")
	require.NoError(t, err)

	got, err := f.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	require.WithinDuration(t, time.Now(), *got.LastLogin, time.Minute)
}

func TestAdminCreateAndSetup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, err := f.users.AdminCreateUser(ctx, "new@example.com", "newbie", "New Admin", f.roleID)
	require.NoError(t, err)

	// Until setup completes there is no password to log in with.
	_, err = f.users.Authenticate(ctx, "new@example.com", "anything")
	require.ErrorIs(t, err, service.ErrPasswordNotSet)

	token := linkToken(t, f.mail.last(t).Body)
	done, err := f.users.CompleteSetup(ctx, token, "chosen-password")
	require.NoError(t, err)
	require.Equal(t, created.ID, done.ID)

	_, err = f.users.Authenticate(ctx, "new@example.com", "chosen-password")
	require.NoError(t, err)

	// Setup tokens are one-time.
	_, err = f.users.CompleteSetup(ctx, token, "other-password")
	require.ErrorIs(t, err, service.ErrInvalidSetupToken)
}

func TestRegenerateSetup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.users.RegenerateSetup(ctx, "missing-id"), service.ErrUserNotFound)

	created, err := f.users.AdminCreateUser(ctx, "new@example.com", "newbie", "", f.roleID)
	require.NoError(t, err)
	firstToken := linkToken(t, f.mail.last(t).Body)

	require.NoError(t, f.users.RegenerateSetup(ctx, created.ID))
	secondToken := linkToken(t, f.mail.last(t).Body)
	require.NotEqual(t, firstToken, secondToken)

	// Regenerating invalidates the earlier link.
	_, err = f.users.CompleteSetup(ctx, firstToken, "chosen-password")
	require.ErrorIs(t, err, service.ErrInvalidSetupToken)

	_, err = f.users.CompleteSetup(ctx, secondToken, "chosen-password")
	require.NoError(t, err)

	require.ErrorIs(t, f.users.RegenerateSetup(ctx, created.ID), service.ErrSetupComplete)
}

func TestListUsersFilters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	other := domain.Role{ID: idx.New().String(), Name: "viewer"}
	require.NoError(t, f.store.Roles().CreateRole(ctx, other))

	a := f.signup(t, "a@example.com", "alpha", "correct-horse")
	f.signup(t, "b@example.com", "beta", "correct-horse")
	viewer, err := f.users.Signup(ctx, "c@example.com", "gamma", "", "correct-horse", other.ID)
	require.NoError(t, err)
	require.NoError(t, f.users.SetActive(ctx, a.ID, false))

	all, err := f.users.ListUsers(ctx, store.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byRole, err := f.users.ListUsers(ctx, store.UserFilter{RoleID: other.ID})
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	require.Equal(t, viewer.ID, byRole[0].ID)

	active := true
	activeOnly, err := f.users.ListUsers(ctx, store.UserFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, activeOnly, 2)
	for _, u := range activeOnly {
		require.NotEqual(t, a.ID, u.ID)
	}

	page1, err := f.users.ListUsers(ctx, store.UserFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	page2, err := f.users.ListUsers(ctx, store.UserFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
}

func TestOAuth2LoginAndExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	code, err := f.oauth.Login(ctx, "a@example.com", "correct-horse",
		"admin-panel", "https://app.example.com/callback", "openid profile", "nonce-1")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	set, err := f.oauth.Exchange(ctx, code, "admin-panel", "https://app.example.com/callback")
	require.NoError(t, err)
	require.NotEmpty(t, set.Pair.AccessToken)
	require.NotEmpty(t, set.IDToken)
	require.Equal(t, "openid profile", set.Scope)

	claims, err := f.tokens.Verifier.Verify(set.Pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Contains(t, claims.Audience, "admin-panel")

	// Codes are one-time.
	_, err = f.oauth.Exchange(ctx, code, "admin-panel", "https://app.example.com/callback")
	require.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestOAuth2ExchangeMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@example.com", "alpha", "correct-horse")

	code, err := f.oauth.Login(ctx, "a@example.com", "correct-horse",
		"admin-panel", "https://app.example.com/callback", "", "")
	require.NoError(t, err)

	_, err = f.oauth.Exchange(ctx, code, "admin-panel", "https://evil.example.com/cb")
	require.ErrorIs(t, err, service.ErrInvalidGrant)

	// The mismatch burnt the code.
	_, err = f.oauth.Exchange(ctx, code, "admin-panel", "https://app.example.com/callback")
	require.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestOAuth2ExchangeWithoutOpenIDScope(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@example.com", "alpha", "correct-horse")

	code, err := f.oauth.Login(ctx, "a@example.com", "correct-horse",
		"admin-panel", "https://app.example.com/callback", "profile", "")
	require.NoError(t, err)

	set, err := f.oauth.Exchange(ctx, code, "admin-panel", "https://app.example.com/callback")
	require.NoError(t, err)
	require.Empty(t, set.IDToken)
}

func TestOAuth2ValidateAuthorizeRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.oauth.ValidateAuthorizeRequest(
		"admin-panel", "https://app.example.com/callback", "code"))
	require.ErrorIs(t, f.oauth.ValidateAuthorizeRequest(
		"unknown", "https://app.example.com/callback", "code"), service.ErrInvalidClient)
	require.ErrorIs(t, f.oauth.ValidateAuthorizeRequest(
		"admin-panel", "https://evil.example.com/cb", "code"), service.ErrInvalidRedirect)
	require.ErrorIs(t, f.oauth.ValidateAuthorizeRequest(
		"admin-panel", "https://app.example.com/callback", "token"), service.ErrInvalidGrant)
}

func TestOAuth2CodeExpires(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@example.com", "alpha", "correct-horse")

	code, err := f.oauth.Login(ctx, "a@example.com", "correct-horse",
		"admin-panel", "https://app.example.com/callback", "", "")
	require.NoError(t, err)

	f.mr.FastForward(11 * time.Minute)

	_, err = f.oauth.Exchange(ctx, code, "admin-panel", "https://app.example.com/callback")
	require.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestOAuth2RevokeIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	pair, err := f.tokens.IssuePair(ctx, u, "admin-panel")
	require.NoError(t, err)

	// Revoking garbage succeeds.
	require.NoError(t, f.oauth.Revoke(ctx, "no-such-token", ""))

	// Revoking the refresh token kills the session.
	require.NoError(t, f.oauth.Revoke(ctx, pair.RefreshToken, "refresh_token"))
	_, _, err = f.tokens.Refresh(ctx, pair.RefreshToken, "admin-panel")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// Revoking an access token blacklists it.
	require.NoError(t, f.oauth.Revoke(ctx, pair.AccessToken, "access_token"))
	require.True(t, f.tokens.Blacklist.IsBlacklisted(ctx, pair.AccessToken))
}

func TestRevokeAccessTokenClearsRefreshSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	pair, err := f.tokens.IssuePair(ctx, u, "admin-panel")
	require.NoError(t, err)

	require.NoError(t, f.oauth.Revoke(ctx, pair.AccessToken, "access_token"))

	// The session is fully torn down, not just the access token.
	require.True(t, f.tokens.Blacklist.IsBlacklisted(ctx, pair.AccessToken))
	_, _, err = f.tokens.Refresh(ctx, pair.RefreshToken, "admin-panel")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestUserinfo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	u := f.signup(t, "a@example.com", "alpha", "correct-horse")

	claims, err := f.oauth.Userinfo(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims["sub"])
	require.Equal(t, "a@example.com", claims["email"])
	require.Equal(t, "alpha", claims["preferred_username"])
}

func TestBootstrapSeedsOnce(t *testing.T) {
	t.Parallel()

	st, err := sqlite.NewStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", idx.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	boot := &service.BootstrapService{
		Store:         st,
		AdminEmail:    "root@example.com",
		AdminUsername: "root",
		AdminPassword: "bootstrap-secret",
	}
	ctx := context.Background()
	require.NoError(t, boot.Run(ctx))

	role, err := st.Roles().GetRoleByName(ctx, service.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, role.Permissions)

	admin, err := st.Users().GetUserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, role.ID, admin.RoleID)

	// Second run is a no-op.
	require.NoError(t, boot.Run(ctx))
	users, err := st.Users().ListUsers(ctx, store.UserFilter{})
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestRoleAndPermissionConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	roles := &service.RoleService{Store: f.store}
	perms := &service.PermissionService{Store: f.store}

	role, err := roles.CreateRole(ctx, "auditor", "read-only access")
	require.NoError(t, err)

	_, err = roles.CreateRole(ctx, "auditor", "")
	require.ErrorIs(t, err, service.ErrDuplicateRole)

	perm, err := perms.CreatePermission(ctx, "audit:read", "")
	require.NoError(t, err)
	require.NoError(t, roles.AddPermission(ctx, role.ID, perm.ID))

	require.ErrorIs(t, perms.DeletePermission(ctx, perm.ID), service.ErrPermissionInUse)

	// A role with users cannot be deleted.
	f.signup(t, "aud@example.com", "aud", "correct-horse")
	u, err := f.store.Users().GetUserByEmail(ctx, "aud@example.com")
	require.NoError(t, err)
	require.NoError(t, f.users.UpdateRole(ctx, u.ID, role.ID))
	require.ErrorIs(t, roles.DeleteRole(ctx, role.ID), service.ErrRoleInUse)

	require.NoError(t, f.users.UpdateRole(ctx, u.ID, f.roleID))
	require.NoError(t, roles.RemovePermission(ctx, role.ID, perm.ID))
	require.NoError(t, roles.DeleteRole(ctx, role.ID))
}

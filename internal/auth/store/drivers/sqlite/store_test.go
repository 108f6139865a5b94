package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/internal/auth/store/drivers/sqlite"
	"github.com/halcyonlabs/adminauth/pkg/idx"
)

// newTestStore opens a migrated in-memory database unique to the test. The
// shared cache keeps the database alive across the pool's connections.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", idx.New())
	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedRole(t *testing.T, s *sqlite.Store, name string) domain.Role {
	t.Helper()

	role := domain.Role{ID: idx.New().String(), Name: name, Description: name + " role"}
	require.NoError(t, s.Roles().CreateRole(context.Background(), role))
	return role
}

func seedUser(t *testing.T, s *sqlite.Store, roleID, email, username string) domain.User {
	t.Helper()

	u := domain.User{
		ID:       idx.New().String(),
		Email:    email,
		Username: username,
		Name:     "Test User",
		RoleID:   roleID,
		IsActive: true,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestUserLookups(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	u := seedUser(t, s, role.ID, "admin@example.com", "admin")

	byID, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", byID.Email)
	require.True(t, byID.IsActive)
	require.Nil(t, byID.RefreshTokenHash)

	byEmail, err := s.Users().GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	byUsername, err := s.Users().GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, u.ID, byUsername.ID)

	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	role := seedRole(t, s, "admin")
	seedUser(t, s, role.ID, "a@example.com", "alpha")

	dup := domain.User{
		ID:       idx.New().String(),
		Email:    "a@example.com",
		Username: "other",
		RoleID:   role.ID,
		IsActive: true,
	}
	err := s.Users().CreateUser(context.Background(), dup)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestRefreshTokenSlot(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	u := seedUser(t, s, role.ID, "a@example.com", "alpha")

	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.Users().SetRefreshToken(ctx, u.ID, "hash-1", expires))

	holder, err := s.Users().GetUserByRefreshTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, u.ID, holder.ID)
	require.True(t, holder.HasActiveRefreshToken(time.Now()))

	// A second login overwrites the slot, the old token stops resolving.
	require.NoError(t, s.Users().SetRefreshToken(ctx, u.ID, "hash-2", expires))
	_, err = s.Users().GetUserByRefreshTokenHash(ctx, "hash-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Users().ClearRefreshToken(ctx, u.ID))
	_, err = s.Users().GetUserByRefreshTokenHash(ctx, "hash-2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRotateRefreshTokenCAS(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	u := seedUser(t, s, role.ID, "a@example.com", "alpha")

	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.Users().SetRefreshToken(ctx, u.ID, "old", expires))

	ok, err := s.Users().RotateRefreshToken(ctx, u.ID, "old", "new", expires)
	require.NoError(t, err)
	require.True(t, ok)

	// Replaying the old token loses the race.
	ok, err = s.Users().RotateRefreshToken(ctx, u.ID, "old", "newer", expires)
	require.NoError(t, err)
	require.False(t, ok)

	holder, err := s.Users().GetUserByRefreshTokenHash(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, u.ID, holder.ID)
}

func TestRotateRefreshTokenExpiredSlot(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	u := seedUser(t, s, role.ID, "a@example.com", "alpha")

	require.NoError(t, s.Users().SetRefreshToken(ctx, u.ID, "old", time.Now().Add(-time.Minute)))

	ok, err := s.Users().RotateRefreshToken(ctx, u.ID, "old", "new", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetAndSetupTokenExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	u := seedUser(t, s, role.ID, "a@example.com", "alpha")

	require.NoError(t, s.Users().SetResetToken(ctx, u.ID, "reset-hash", time.Now().Add(10*time.Minute)))
	found, err := s.Users().GetUserByResetTokenHash(ctx, "reset-hash")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)

	// Expired slots never resolve.
	require.NoError(t, s.Users().SetResetToken(ctx, u.ID, "stale-hash", time.Now().Add(-time.Minute)))
	_, err = s.Users().GetUserByResetTokenHash(ctx, "stale-hash")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Users().SetSetupToken(ctx, u.ID, "setup-hash", time.Now().Add(24*time.Hour)))
	found, err = s.Users().GetUserBySetupTokenHash(ctx, "setup-hash")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)

	require.NoError(t, s.Users().ClearSetupToken(ctx, u.ID))
	_, err = s.Users().GetUserBySetupTokenHash(ctx, "setup-hash")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearExpiredTokenSlots(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	expired := seedUser(t, s, role.ID, "a@example.com", "alpha")
	live := seedUser(t, s, role.ID, "b@example.com", "beta")

	require.NoError(t, s.Users().SetRefreshToken(ctx, expired.ID, "dead", time.Now().Add(-time.Hour)))
	require.NoError(t, s.Users().SetRefreshToken(ctx, live.ID, "alive", time.Now().Add(time.Hour)))

	require.NoError(t, s.Users().ClearExpiredTokenSlots(ctx))

	u, err := s.Users().GetUserByID(ctx, expired.ID)
	require.NoError(t, err)
	require.Nil(t, u.RefreshTokenHash)
	require.Nil(t, u.RefreshTokenExpires)

	u, err = s.Users().GetUserByID(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, u.RefreshTokenHash)
}

func TestUpdatePasswordHashStampsChange(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	u := seedUser(t, s, role.ID, "a@example.com", "alpha")

	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "new-hash"))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.NotNil(t, got.PasswordChangedAt)
}

func TestRolePermissionLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")

	perm := domain.Permission{ID: idx.New().String(), Action: "users:write"}
	require.NoError(t, s.Permissions().CreatePermission(ctx, perm))

	require.NoError(t, s.Roles().AddPermission(ctx, role.ID, perm.ID))
	// Idempotent re-attach.
	require.NoError(t, s.Roles().AddPermission(ctx, role.ID, perm.ID))

	got, err := s.Roles().GetRoleByID(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, got.Permissions, 1)
	require.Equal(t, "users:write", got.Permissions[0].Action)

	// A held permission cannot be deleted.
	require.ErrorIs(t, s.Permissions().DeletePermission(ctx, perm.ID), store.ErrInUse)

	require.NoError(t, s.Roles().RemovePermission(ctx, role.ID, perm.ID))
	require.NoError(t, s.Permissions().DeletePermission(ctx, perm.ID))
}

func TestDeleteRoleInUse(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")
	seedUser(t, s, role.ID, "a@example.com", "alpha")

	require.ErrorIs(t, s.Roles().DeleteRole(ctx, role.ID), store.ErrInUse)
}

func TestDuplicateRoleName(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedRole(t, s, "admin")

	err := s.Roles().CreateRole(context.Background(), domain.Role{
		ID:   idx.New().String(),
		Name: "admin",
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, s, "admin")

	sentinel := fmt.Errorf("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID:       idx.New().String(),
			Email:    "tx@example.com",
			Username: "tx",
			RoleID:   role.ID,
			IsActive: true,
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = s.Users().GetUserByEmail(ctx, "tx@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

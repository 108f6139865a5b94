package store

import (
	"context"
	"errors"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrInUse is returned when deleting a row that other rows still
	// reference, e.g. a role with users or a permission held by roles.
	ErrInUse = errors.New("store: still referenced")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable. We can change having the sub-repos as methods later but we do it
// now so we can have more control and actively stop people from accidently
// doing transactions within transactions.
type Store interface {
	Users() Users
	Roles() Roles
	Permissions() Permissions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// This is the recommended way to handle transactions as it automatically
	// handles commit/rollback logic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// UserFilter narrows and pages user listings. Zero values mean "no
// constraint"; Limit <= 0 returns everything.
type UserFilter struct {
	RoleID string
	Active *bool
	Limit  int
	Offset int
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during password login.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByUsername mirrors GetUserByEmail for username logins.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByRefreshTokenHash finds the holder of a presented refresh
	// token by its fingerprint. Expiry is NOT checked here; callers decide
	// how to treat an expired slot.
	GetUserByRefreshTokenHash(ctx context.Context, hash string) (domain.User, error)

	// GetUserByResetTokenHash finds a user by an unexpired reset token slot.
	GetUserByResetTokenHash(ctx context.Context, hash string) (domain.User, error)

	// GetUserBySetupTokenHash finds a user by an unexpired setup token slot.
	GetUserBySetupTokenHash(ctx context.Context, hash string) (domain.User, error)

	// ListUsers returns users ordered by creation date (newest first),
	// narrowed and paged by the filter.
	ListUsers(ctx context.Context, f UserFilter) ([]domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUserProfile mutates email, username and name, bumps updated_at.
	UpdateUserProfile(ctx context.Context, userID, email, username, name string) error

	// UpdateUserRole reassigns the user's role.
	UpdateUserRole(ctx context.Context, userID, roleID string) error

	// SetUserActive flips the is_active flag.
	SetUserActive(ctx context.Context, userID string, active bool) error

	// TouchLastLogin stamps last_login with the current time.
	TouchLastLogin(ctx context.Context, userID string) error

	// UpdatePasswordHash sets the password_hash (bcrypt), stamps
	// password_changed_at and bumps updated_at. Access tokens issued before
	// the stamp become stale.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetRefreshToken overwrites the single refresh token slot. Any prior
	// session's refresh token stops working immediately.
	SetRefreshToken(ctx context.Context, userID, hash string, expires time.Time) error

	// ClearRefreshToken empties the refresh token slot (logout).
	ClearRefreshToken(ctx context.Context, userID string) error

	// RotateRefreshToken atomically swaps the slot from oldHash to newHash,
	// but only while the slot still holds oldHash unexpired. Returns false
	// when the slot changed underneath us, which means a concurrent rotation
	// or revocation won and the caller must force re-authentication.
	RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expires time.Time) (bool, error)

	// SetResetToken overwrites the password reset slot.
	SetResetToken(ctx context.Context, userID, hash string, expires time.Time) error

	// ClearResetToken empties the reset slot after use.
	ClearResetToken(ctx context.Context, userID string) error

	// SetSetupToken overwrites the first-login setup slot.
	SetSetupToken(ctx context.Context, userID, hash string, expires time.Time) error

	// ClearSetupToken empties the setup slot after the password is set.
	ClearSetupToken(ctx context.Context, userID string) error

	// DeleteUser removes the user row.
	DeleteUser(ctx context.Context, userID string) error

	// CountByRole returns how many users reference a role. Used to refuse
	// deleting roles that are still assigned.
	CountByRole(ctx context.Context, roleID string) (int, error)

	// ClearExpiredTokenSlots nulls out refresh, reset and setup slots whose
	// expiry has passed. Housekeeping.
	ClearExpiredTokenSlots(ctx context.Context) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Roles interface {
	// GetRoleByID fetches a role with its permissions populated.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// GetRoleByName fetches a role by its unique name (for bootstrap).
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListRoles returns all roles, permissions not populated.
	ListRoles(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts a new role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// UpdateRole mutates name and description.
	UpdateRole(ctx context.Context, roleID, name, description string) error

	// DeleteRole removes a role. Returns ErrInUse while users reference it.
	DeleteRole(ctx context.Context, roleID string) error

	// AddPermission attaches a permission to a role. Idempotent.
	AddPermission(ctx context.Context, roleID, permissionID string) error

	// RemovePermission detaches a permission from a role.
	RemovePermission(ctx context.Context, roleID, permissionID string) error

	// IsEmpty returns true if there are no roles.
	IsEmpty(ctx context.Context) (bool, error)
}

type Permissions interface {
	// GetPermissionByID fetches a permission by id.
	GetPermissionByID(ctx context.Context, id string) (domain.Permission, error)

	// GetPermissionByAction fetches a permission by its unique action string.
	GetPermissionByAction(ctx context.Context, action string) (domain.Permission, error)

	// ListPermissions returns all permissions ordered by action.
	ListPermissions(ctx context.Context) ([]domain.Permission, error)

	// CreatePermission inserts a new permission (id is ULID).
	CreatePermission(ctx context.Context, p domain.Permission) error

	// UpdatePermission mutates action and description.
	UpdatePermission(ctx context.Context, permissionID, action, description string) error

	// DeletePermission removes a permission. Returns ErrInUse while roles
	// still hold it.
	DeletePermission(ctx context.Context, permissionID string) error
}

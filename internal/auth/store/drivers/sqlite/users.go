package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, email, username, name, password_hash, role_id, is_active,
	password_changed_at, refresh_token_hash, refresh_token_expires,
	reset_token_hash, reset_token_expires, setup_token_hash, setup_token_expires,
	last_login, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u         domain.User
		pwChanged sql.NullTime
		rtHash    sql.NullString
		rtExpires sql.NullTime
		rsHash    sql.NullString
		rsExpires sql.NullTime
		stHash    sql.NullString
		stExpires sql.NullTime
		lastLogin sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.RoleID, &u.IsActive,
		&pwChanged, &rtHash, &rtExpires,
		&rsHash, &rsExpires, &stHash, &stExpires,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.PasswordChangedAt = timePtr(pwChanged)
	u.RefreshTokenHash = stringPtr(rtHash)
	u.RefreshTokenExpires = timePtr(rtExpires)
	u.ResetTokenHash = stringPtr(rsHash)
	u.ResetTokenExpires = timePtr(rsExpires)
	u.SetupTokenHash = stringPtr(stHash)
	u.SetupTokenExpires = timePtr(stExpires)
	u.LastLogin = timePtr(lastLogin)
	return u, nil
}

func (r *usersRepo) getUserBy(ctx context.Context, column, value string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getUserBy(ctx, "id", id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getUserBy(ctx, "email", email)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getUserBy(ctx, "username", username)
}

func (r *usersRepo) GetUserByRefreshTokenHash(ctx context.Context, hash string) (domain.User, error) {
	return r.getUserBy(ctx, "refresh_token_hash", hash)
}

func (r *usersRepo) GetUserByResetTokenHash(ctx context.Context, hash string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token_hash = ? AND reset_token_expires > ?`,
		hash, time.Now().UTC()))
}

func (r *usersRepo) GetUserBySetupTokenHash(ctx context.Context, hash string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE setup_token_hash = ? AND setup_token_expires > ?`,
		hash, time.Now().UTC()))
}

func (r *usersRepo) ListUsers(ctx context.Context, f store.UserFilter) ([]domain.User, error) {
	query := `SELECT id, email, username, name, role_id, is_active, last_login, created_at, updated_at
		 FROM users`
	var (
		where []string
		args  []any
	)
	if f.RoleID != "" {
		where = append(where, "role_id = ?")
		args = append(args, f.RoleID)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.Active)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var (
			u         domain.User
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.Name,
			&u.RoleID, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.LastLogin = timePtr(lastLogin)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, email, username, name, password_hash, role_id, is_active,
			setup_token_hash, setup_token_expires, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.Name, u.PasswordHash, u.RoleID, u.IsActive,
		optString(u.SetupTokenHash), optTime(u.SetupTokenExpires), now, now)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUserProfile(ctx context.Context, userID, email, username, name string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET email = ?, username = ?, name = ?, updated_at = ?
		 WHERE id = ?`,
		email, username, name, time.Now().UTC(), userID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

func (r *usersRepo) UpdateUserRole(ctx context.Context, userID, roleID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET role_id = ?, updated_at = ? WHERE id = ?`,
		roleID, time.Now().UTC(), userID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

func (r *usersRepo) SetUserActive(ctx context.Context, userID string, active bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) TouchLastLogin(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, password_changed_at = ?, updated_at = ?
		 WHERE id = ?`,
		newHash, now, now, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID, hash string, expires time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = ?, refresh_token_expires = ?, updated_at = ?
		 WHERE id = ?`,
		hash, expires.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = NULL, refresh_token_expires = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RotateRefreshToken is a compare-and-swap on the refresh slot. The WHERE
// clause only matches while the slot still holds oldHash unexpired, so two
// concurrent rotations of the same token can never both succeed.
func (r *usersRepo) RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expires time.Time) (bool, error) {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = ?, refresh_token_expires = ?, updated_at = ?
		 WHERE id = ? AND refresh_token_hash = ? AND refresh_token_expires > ?`,
		newHash, expires.UTC(), now, userID, oldHash, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) SetResetToken(ctx context.Context, userID, hash string, expires time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = ?, reset_token_expires = ?, updated_at = ?
		 WHERE id = ?`,
		hash, expires.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ClearResetToken(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = NULL, reset_token_expires = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetSetupToken(ctx context.Context, userID, hash string, expires time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET setup_token_hash = ?, setup_token_expires = ?, updated_at = ?
		 WHERE id = ?`,
		hash, expires.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ClearSetupToken(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET setup_token_hash = NULL, setup_token_expires = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) CountByRole(ctx context.Context, roleID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role_id = ?`, roleID).Scan(&count)
	return count, err
}

func (r *usersRepo) ClearExpiredTokenSlots(ctx context.Context) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET
			refresh_token_hash = CASE WHEN refresh_token_expires <= ?1 THEN NULL ELSE refresh_token_hash END,
			refresh_token_expires = CASE WHEN refresh_token_expires <= ?1 THEN NULL ELSE refresh_token_expires END,
			reset_token_hash = CASE WHEN reset_token_expires <= ?1 THEN NULL ELSE reset_token_hash END,
			reset_token_expires = CASE WHEN reset_token_expires <= ?1 THEN NULL ELSE reset_token_expires END,
			setup_token_hash = CASE WHEN setup_token_expires <= ?1 THEN NULL ELSE setup_token_hash END,
			setup_token_expires = CASE WHEN setup_token_expires <= ?1 THEN NULL ELSE setup_token_expires END
		 WHERE refresh_token_expires <= ?1 OR reset_token_expires <= ?1 OR setup_token_expires <= ?1`,
		now)
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

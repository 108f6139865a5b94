package sqlite

import (
	"context"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
)

type rolesRepo struct {
	q dbtx
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	var role domain.Role
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE id = ?`,
		id).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}

	perms, err := r.rolePermissions(ctx, role.ID)
	if err != nil {
		return domain.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var role domain.Role
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE name = ?`,
		name).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}

	perms, err := r.rolePermissions(ctx, role.ID)
	if err != nil {
		return domain.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

func (r *rolesRepo) rolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT p.id, p.action, p.description, p.created_at, p.updated_at
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ?
		 ORDER BY p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.Name, role.Description, now, now)
	return mapConstraint(err)
}

func (r *rolesRepo) UpdateRole(ctx context.Context, roleID, name, description string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, time.Now().UTC(), roleID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

// DeleteRole refuses to remove a role any user still holds. The check and
// the delete run in the same statement scope, which is good enough under
// sqlite's writer lock.
func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	var users int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role_id = ?`, roleID).Scan(&users); err != nil {
		return err
	}
	if users > 0 {
		return store.ErrInUse
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

func (r *rolesRepo) AddPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
		roleID, permissionID)
	return mapConstraint(err)
}

func (r *rolesRepo) RemovePermission(ctx context.Context, roleID, permissionID string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?`,
		roleID, permissionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *rolesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

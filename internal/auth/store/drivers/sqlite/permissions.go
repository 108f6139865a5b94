package sqlite

import (
	"context"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
)

type permissionsRepo struct {
	q dbtx
}

func (r *permissionsRepo) GetPermissionByID(ctx context.Context, id string) (domain.Permission, error) {
	var p domain.Permission
	err := r.q.QueryRowContext(ctx,
		`SELECT id, action, description, created_at, updated_at FROM permissions WHERE id = ?`,
		id).Scan(&p.ID, &p.Action, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	return p, nil
}

func (r *permissionsRepo) GetPermissionByAction(ctx context.Context, action string) (domain.Permission, error) {
	var p domain.Permission
	err := r.q.QueryRowContext(ctx,
		`SELECT id, action, description, created_at, updated_at FROM permissions WHERE action = ?`,
		action).Scan(&p.ID, &p.Action, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	return p, nil
}

func (r *permissionsRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, action, description, created_at, updated_at FROM permissions ORDER BY action`)
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

func (r *permissionsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO permissions (id, action, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Action, p.Description, now, now)
	return mapConstraint(err)
}

func (r *permissionsRepo) UpdatePermission(ctx context.Context, permissionID, action, description string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE permissions SET action = ?, description = ?, updated_at = ? WHERE id = ?`,
		action, description, time.Now().UTC(), permissionID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

// DeletePermission refuses to remove a permission while roles still hold it.
func (r *permissionsRepo) DeletePermission(ctx context.Context, permissionID string) error {
	var holders int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE permission_id = ?`,
		permissionID).Scan(&holders); err != nil {
		return err
	}
	if holders > 0 {
		return store.ErrInUse
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, permissionID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

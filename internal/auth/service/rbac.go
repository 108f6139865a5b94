package service

import (
	"context"
	"errors"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/pkg/idx"
)

// RoleService manages roles and their permission assignments.
type RoleService struct {
	Store store.Store
}

func (s *RoleService) GetRole(ctx context.Context, roleID string) (domain.Role, error) {
	role, err := s.Store.Roles().GetRoleByID(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, ErrRoleNotFound
	}
	return role, err
}

func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.Store.Roles().ListRoles(ctx)
}

func (s *RoleService) CreateRole(ctx context.Context, name, description string) (domain.Role, error) {
	role := domain.Role{
		ID:          idx.New().String(),
		Name:        name,
		Description: description,
	}
	if err := s.Store.Roles().CreateRole(ctx, role); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Role{}, ErrDuplicateRole
		}
		return domain.Role{}, err
	}
	return role, nil
}

func (s *RoleService) UpdateRole(ctx context.Context, roleID, name, description string) error {
	err := s.Store.Roles().UpdateRole(ctx, roleID, name, description)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRoleNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrDuplicateRole
	}
	return err
}

// DeleteRole refuses while users still hold the role.
func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	err := s.Store.Roles().DeleteRole(ctx, roleID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRoleNotFound
	case errors.Is(err, store.ErrInUse):
		return ErrRoleInUse
	}
	return err
}

func (s *RoleService) AddPermission(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.Store.Permissions().GetPermissionByID(ctx, permissionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return err
	}
	return s.Store.Roles().AddPermission(ctx, roleID, permissionID)
}

func (s *RoleService) RemovePermission(ctx context.Context, roleID, permissionID string) error {
	err := s.Store.Roles().RemovePermission(ctx, roleID, permissionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrPermissionNotFound
	}
	return err
}

// PermissionService manages the permission catalogue.
type PermissionService struct {
	Store store.Store
}

func (s *PermissionService) GetPermission(ctx context.Context, id string) (domain.Permission, error) {
	p, err := s.Store.Permissions().GetPermissionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Permission{}, ErrPermissionNotFound
	}
	return p, err
}

func (s *PermissionService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return s.Store.Permissions().ListPermissions(ctx)
}

func (s *PermissionService) CreatePermission(ctx context.Context, action, description string) (domain.Permission, error) {
	p := domain.Permission{
		ID:          idx.New().String(),
		Action:      action,
		Description: description,
	}
	if err := s.Store.Permissions().CreatePermission(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Permission{}, ErrDuplicatePerm
		}
		return domain.Permission{}, err
	}
	return p, nil
}

func (s *PermissionService) UpdatePermission(ctx context.Context, id, action, description string) error {
	err := s.Store.Permissions().UpdatePermission(ctx, id, action, description)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrPermissionNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrDuplicatePerm
	}
	return err
}

// DeletePermission refuses while any role still holds the permission.
func (s *PermissionService) DeletePermission(ctx context.Context, id string) error {
	err := s.Store.Permissions().DeletePermission(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrPermissionNotFound
	case errors.Is(err, store.ErrInUse):
		return ErrPermissionInUse
	}
	return err
}

package service

import (
	"context"
	"log/slog"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/idx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// Default role names seeded on first start.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// defaultPermissions is the catalogue seeded on first start, keyed by the
// role that gets them. The user role holds no admin permissions.
var defaultPermissions = map[string][]string{
	RoleAdmin: {
		"users:read", "users:write",
		"roles:read", "roles:write",
		"permissions:read", "permissions:write",
	},
	RoleUser: {},
}

// BootstrapService seeds an empty database with the default roles, their
// permissions and an initial admin account. Running it against a populated
// database is a no-op.
type BootstrapService struct {
	Store store.Store

	AdminEmail    string
	AdminUsername string
	// AdminPassword is optional; when empty a random password is generated
	// and logged exactly once.
	AdminPassword string
}

// Run performs the seeding inside a single transaction.
func (s *BootstrapService) Run(ctx context.Context) error {
	l := slogx.FromContext(ctx)

	empty, err := s.Store.Roles().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	password := s.AdminPassword
	generated := false
	if password == "" {
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return err
		}
		generated = true
	}
	passHash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}

	var adminRoleID string

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		permIDs := map[string]string{}
		for _, actions := range defaultPermissions {
			for _, action := range actions {
				if _, seen := permIDs[action]; seen {
					continue
				}
				p := domain.Permission{ID: idx.New().String(), Action: action}
				if err := tx.Permissions().CreatePermission(ctx, p); err != nil {
					return err
				}
				permIDs[action] = p.ID
			}
		}

		for name, actions := range defaultPermissions {
			role := domain.Role{ID: idx.New().String(), Name: name}
			if err := tx.Roles().CreateRole(ctx, role); err != nil {
				return err
			}
			if name == RoleAdmin {
				adminRoleID = role.ID
			}
			for _, action := range actions {
				if err := tx.Roles().AddPermission(ctx, role.ID, permIDs[action]); err != nil {
					return err
				}
			}
		}

		return tx.Users().CreateUser(ctx, domain.User{
			ID:           idx.New().String(),
			Email:        s.AdminEmail,
			Username:     s.AdminUsername,
			Name:         "Administrator",
			PasswordHash: passHash,
			RoleID:       adminRoleID,
			IsActive:     true,
		})
	})
	if err != nil {
		return err
	}

	if generated {
		// Logged once so the operator can log in; rotate it immediately.
		l.Warn("generated initial admin password",
			slog.String("username", s.AdminUsername),
			slog.String("password", password))
	} else {
		l.Info("seeded initial admin account", slog.String("username", s.AdminUsername))
	}
	return nil
}

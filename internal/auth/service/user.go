package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/mail"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/idx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

const minPasswordLength = 8

// UserService owns the account lifecycle: signup, credential checks,
// password reset and the admin-driven create-then-setup flow.
type UserService struct {
	Store   store.Store
	Tokens  *TokenService
	Mail    mail.Sender
	BaseURL string // public base URL used in emailed links

	ResetTTL time.Duration
	SetupTTL time.Duration
}

// Authenticate checks an identifier (email or username) and password.
// Failures collapse into ErrInvalidCredentials so responses never reveal
// whether the account exists.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByEmail(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.Store.Users().GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.PasswordHash == "" {
		// Account created by an admin but setup never completed.
		return domain.User{}, ErrPasswordNotSet
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, ErrUserDisabled
	}

	if err := s.Store.Users().TouchLastLogin(ctx, user.ID); err != nil {
		slogx.FromContext(ctx).Warn("failed to stamp last login",
			slog.String("user_id", user.ID), "err", err)
	}

	return user, nil
}

// Signup registers a self-service account with the given role.
func (s *UserService) Signup(ctx context.Context, email, username, name, password, roleID string) (domain.User, error) {
	if len(password) < minPasswordLength {
		return domain.User{}, ErrPasswordTooWeak
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		Username:     username,
		Name:         name,
		PasswordHash: hash,
		RoleID:       roleID,
		IsActive:     true,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateUser
		}
		return domain.User{}, err
	}

	return user, nil
}

// Logout tears the session down from both ends: the refresh slot is cleared
// and the presented access token is blacklisted until it would have expired.
func (s *UserService) Logout(ctx context.Context, userID, rawAccessToken string) error {
	if err := s.Store.Users().ClearRefreshToken(ctx, userID); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return err
	}
	if rawAccessToken == "" {
		return nil
	}
	return s.Tokens.BlacklistAccessToken(ctx, rawAccessToken)
}

// ForgotPassword mints a reset token and emails a link. It reports success
// even for unknown addresses so the endpoint cannot be used to enumerate
// accounts.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSizeReset)
	if err != nil {
		return err
	}
	if err := s.Store.Users().SetResetToken(ctx, user.ID,
		cryptox.FingerprintToken(token), time.Now().Add(s.ResetTTL)); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.BaseURL, token)
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Reset your password within %s:\n\n%s\n\n"+
			"If you did not request this, ignore this email.",
		s.ResetTTL, link)

	if err := s.Mail.Send(ctx, user.Email, "Password reset", body); err != nil {
		l.Error("failed to send reset email", slog.String("user_id", user.ID), "err", err)
		// The token never reached the user, leave no live slot behind.
		if clearErr := s.Store.Users().ClearResetToken(ctx, user.ID); clearErr != nil {
			l.Error("failed to clear reset token", slog.String("user_id", user.ID), "err", clearErr)
		}
		return err
	}
	return nil
}

// ResetPassword redeems a reset token. The refresh slot is cleared as well,
// a stolen session does not survive a password reset.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooWeak
	}

	user, err := s.Store.Users().GetUserByResetTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}
		if err := tx.Users().ClearResetToken(ctx, user.ID); err != nil {
			return err
		}
		return tx.Users().ClearRefreshToken(ctx, user.ID)
	})
}

// UpdatePassword changes the password of an authenticated user. The current
// password is re-checked, a hijacked access token alone is not enough.
func (s *UserService) UpdatePassword(ctx context.Context, userID, current, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooWeak
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := cryptox.VerifyPassword(current, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if cryptox.VerifyPassword(newPassword, user.PasswordHash) == nil {
		return ErrPasswordReused
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	// password_changed_at makes older access tokens fail the freshness
	// check; clearing the slot kills the refresh half of the session.
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}
		return tx.Users().ClearRefreshToken(ctx, userID)
	})
}

// AdminCreateUser provisions an account without a password and emails a
// one-time setup link. The account cannot log in until setup completes.
func (s *UserService) AdminCreateUser(ctx context.Context, email, username, name, roleID string) (domain.User, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSizeReset)
	if err != nil {
		return domain.User{}, err
	}

	hash := cryptox.FingerprintToken(token)
	expires := time.Now().Add(s.SetupTTL)
	user := domain.User{
		ID:                idx.New().String(),
		Email:             email,
		Username:          username,
		Name:              name,
		RoleID:            roleID,
		IsActive:          true,
		SetupTokenHash:    &hash,
		SetupTokenExpires: &expires,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateUser
		}
		return domain.User{}, err
	}

	link := fmt.Sprintf("%s/setup-account?token=%s", s.BaseURL, token)
	body := fmt.Sprintf(
		"An account has been created for you.\n\n"+
			"Choose your password within %s:\n\n%s",
		s.SetupTTL, link)

	if err := s.Mail.Send(ctx, email, "Account setup", body); err != nil {
		slogx.FromContext(ctx).Error("failed to send setup email",
			slog.String("user_id", user.ID), "err", err)
	}

	return user, nil
}

// CompleteSetup redeems a setup token and installs the first password.
func (s *UserService) CompleteSetup(ctx context.Context, token, password string) (domain.User, error) {
	if len(password) < minPasswordLength {
		return domain.User{}, ErrPasswordTooWeak
	}

	user, err := s.Store.Users().GetUserBySetupTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidSetupToken
		}
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}
		return tx.Users().ClearSetupToken(ctx, user.ID)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns users matching the filter, newest first.
func (s *UserService) ListUsers(ctx context.Context, f store.UserFilter) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx, f)
}

// RegenerateSetup re-mints the setup token for an account that has not
// finished setup yet and mails a fresh link.
func (s *UserService) RegenerateSetup(ctx context.Context, userID string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.PasswordHash != "" {
		return ErrSetupComplete
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSizeReset)
	if err != nil {
		return err
	}
	if err := s.Store.Users().SetSetupToken(ctx, user.ID,
		cryptox.FingerprintToken(token), time.Now().Add(s.SetupTTL)); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/setup-account?token=%s", s.BaseURL, token)
	body := fmt.Sprintf(
		"A new account setup link was issued for you.\n\n"+
			"Choose your password within %s:\n\n%s",
		s.SetupTTL, link)

	if err := s.Mail.Send(ctx, user.Email, "Account setup", body); err != nil {
		slogx.FromContext(ctx).Error("failed to send setup email",
			slog.String("user_id", user.ID), "err", err)
		return err
	}
	return nil
}

// UpdateProfile mutates the identity fields of a user.
func (s *UserService) UpdateProfile(ctx context.Context, userID, email, username, name string) error {
	err := s.Store.Users().UpdateUserProfile(ctx, userID, email, username, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrDuplicateUser
	}
	return err
}

// UpdateRole reassigns a user's role.
func (s *UserService) UpdateRole(ctx context.Context, userID, roleID string) error {
	err := s.Store.Users().UpdateUserRole(ctx, userID, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// SetActive enables or disables an account. Disabling also clears the
// refresh slot so the session dies with the flag.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetUserActive(ctx, userID, active); err != nil {
			return err
		}
		if !active {
			return tx.Users().ClearRefreshToken(ctx, userID)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// DeleteUser removes an account entirely.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	err := s.Store.Users().DeleteUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

package service

import "errors"

// Service-level sentinels. Handlers map these onto OAuth2 error codes or
// admin API statuses; services never know about HTTP.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidRedirect    = errors.New("invalid_redirect_uri")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")

	// ErrRefreshConflict means a concurrent rotation or revocation won the
	// race for the single refresh slot. The session must re-authenticate.
	ErrRefreshConflict = errors.New("refresh_token_conflict")

	// ErrUserDisabled covers deactivated accounts across every grant.
	ErrUserDisabled = errors.New("user_disabled")

	ErrUserNotFound      = errors.New("user_not_found")
	ErrDuplicateUser     = errors.New("user_already_exists")
	ErrPasswordTooWeak   = errors.New("password_too_weak")
	ErrPasswordReused    = errors.New("password_reused")
	ErrInvalidResetToken = errors.New("invalid_reset_token")
	ErrInvalidSetupToken = errors.New("invalid_setup_token")
	ErrPasswordNotSet    = errors.New("password_not_set")

	// ErrSetupComplete is returned when a setup link is requested for an
	// account that already finished setup.
	ErrSetupComplete = errors.New("setup_already_complete")

	ErrRoleNotFound       = errors.New("role_not_found")
	ErrRoleInUse          = errors.New("role_in_use")
	ErrDuplicateRole      = errors.New("role_already_exists")
	ErrPermissionNotFound = errors.New("permission_not_found")
	ErrPermissionInUse    = errors.New("permission_in_use")
	ErrDuplicatePerm      = errors.New("permission_already_exists")
)

package authcore

import "errors"

var (
	// ErrInvalidCredentials covers any credential failure, including a
	// missing principal, so callers never learn which factor was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when the principal is suspended.
	ErrAccountInactive = errors.New("account inactive")
	// ErrRegistrationDisabled is returned by Signup when registration is
	// turned off in configuration.
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrProviderNotFound is returned when no provider is registered
	// under the requested name.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrEmailAlreadyExists signals a signup identity conflict on email.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrPhoneAlreadyExists signals a signup identity conflict on phone.
	ErrPhoneAlreadyExists = errors.New("phone already exists")
	// ErrPrincipalNotFound is returned by principal store lookups that
	// miss. Login flows translate it to ErrInvalidCredentials.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrIdentityNotFound is returned when no identity link exists for a
	// (provider, provider-user-id) pair.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrSessionNotFound is returned when a session id resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session exists but is past expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshTokenInvalid is returned when a refresh token fails
	// verification or its session is gone.
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	// ErrRefreshTokenExpired is returned when the refresh token or its
	// session is past expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrMFACodeInvalid is returned on any MFA challenge failure. Wrong
	// and expired codes are not distinguished.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFANotRequired is returned when verify-MFA is called on a
	// session that has no pending challenge.
	ErrMFANotRequired = errors.New("mfa not required")
	// ErrMFAMethodDisabled is returned when an MFA operation names a
	// method the configuration does not enable.
	ErrMFAMethodDisabled = errors.New("mfa method disabled")
	// ErrTOTPNotEnrolled is returned when a TOTP operation runs before
	// GenerateTOTPSetup stored a secret for the principal.
	ErrTOTPNotEnrolled = errors.New("totp not enrolled")
	// ErrOTPInvalid is returned when a one-time code does not match.
	ErrOTPInvalid = errors.New("invalid one-time code")
	// ErrOTPExpired is returned when a one-time code is expired or was
	// already consumed.
	ErrOTPExpired = errors.New("one-time code expired")
	// ErrResetTokenInvalid is returned when a password-reset token fails
	// signature or hash-fingerprint validation.
	ErrResetTokenInvalid = errors.New("invalid password reset token")
	// ErrPasswordReuse is returned when the new password equals the
	// current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrForbidden is returned on guard or role restriction failures.
	ErrForbidden = errors.New("forbidden")
	// ErrThrottled is returned when a flow hits its attempt budget.
	ErrThrottled = errors.New("too many attempts")
	// ErrTokenInvalid is returned when an access token fails verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEngineNotReady is returned when the engine is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

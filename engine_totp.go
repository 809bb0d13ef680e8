package authcore

import (
	"context"
	"time"

	"github.com/sentinelforge/authcore/session"
	"github.com/sentinelforge/authcore/token"
)

// TOTPSetup is the enrollment material handed to the caller for display:
// the shared secret in base32 and the otpauth:// provisioning URI most
// authenticator apps consume as a QR code.
type TOTPSetup struct {
	Secret       string
	ProvisionURI string
}

// GenerateTOTPSetup starts TOTP enrollment for the principal behind the
// access token. The generated secret is stored immediately but stays
// unarmed: MFA only switches on once ConfirmTOTPSetup proves the caller's
// authenticator produces matching codes. Calling it again replaces any
// unconfirmed secret.
func (e *Engine) GenerateTOTPSetup(ctx context.Context, accessToken string) (*TOTPSetup, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if !containsString(e.config.MFA.Methods, "totp") {
		return nil, e.fail(ctx, ErrMFAMethodDisabled)
	}

	principal, _, err := e.verifiedPrincipal(ctx, accessToken)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	principal.TOTPSecret = secret
	if err := e.principals.Update(ctx, principal); err != nil {
		return nil, e.fail(ctx, err)
	}

	account := principal.Email
	if account == "" {
		account = principal.Phone
	}
	if account == "" {
		account = principal.ID
	}

	return &TOTPSetup{
		Secret:       secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, account),
	}, nil
}

// ConfirmTOTPSetup completes enrollment by checking a code from the
// caller's authenticator against the stored secret. On success the
// principal flips to MFA-enabled, so every later login enters the
// challenge flow.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, accessToken, code string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if !containsString(e.config.MFA.Methods, "totp") {
		return e.fail(ctx, ErrMFAMethodDisabled)
	}

	principal, sess, err := e.verifiedPrincipal(ctx, accessToken)
	if err != nil {
		return e.fail(ctx, err)
	}
	if len(principal.TOTPSecret) == 0 {
		return e.fail(ctx, ErrTOTPNotEnrolled)
	}

	ok, err := e.totp.VerifyCode(principal.TOTPSecret, code, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		return e.fail(ctx, ErrMFACodeInvalid)
	}

	if !principal.MFAEnabled {
		principal.MFAEnabled = true
		if err := e.principals.Update(ctx, principal); err != nil {
			return e.fail(ctx, err)
		}
	}

	e.emit(ctx, EventTwoFactorEnrolled, principal.ID, principal.TenantID, sess.ID, map[string]string{
		"method": "totp",
	})

	return nil
}

// DisableTOTP drops the principal's TOTP secret and switches MFA off.
// Trusted-device grants die with it: with no challenge left to bypass
// they would only mask a stale enrollment.
func (e *Engine) DisableTOTP(ctx context.Context, accessToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	principal, sess, err := e.verifiedPrincipal(ctx, accessToken)
	if err != nil {
		return e.fail(ctx, err)
	}
	if len(principal.TOTPSecret) == 0 && !principal.MFAEnabled {
		return e.fail(ctx, ErrTOTPNotEnrolled)
	}

	principal.TOTPSecret = nil
	principal.MFAEnabled = false
	if err := e.principals.Update(ctx, principal); err != nil {
		return e.fail(ctx, err)
	}

	if _, err := e.trust.RevokeAll(ctx, principal.TenantID, principal.ID); err != nil {
		return e.fail(ctx, err)
	}

	e.emit(ctx, EventTwoFactorDisabled, principal.ID, principal.TenantID, sess.ID, map[string]string{
		"method": "totp",
	})

	return nil
}

// verifiedPrincipal resolves the access token to its principal through a
// live, fully MFA-verified session. Pre-MFA sessions cannot touch
// enrollment state.
func (e *Engine) verifiedPrincipal(ctx context.Context, accessToken string) (*Principal, *session.Session, error) {
	claims, err := e.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, nil, ErrTokenInvalid
	}

	sess, err := e.sessions.Get(ctx, claims.TenantID, claims.SessionID, false)
	if err != nil {
		return nil, nil, sessionError(err)
	}
	if sess.PrincipalID != claims.Subject {
		return nil, nil, ErrSessionNotFound
	}
	if !sess.Data.IsMFAVerified {
		return nil, nil, ErrForbidden
	}

	principal, err := e.principals.GetByID(ctx, sess.TenantID, sess.PrincipalID)
	if err != nil {
		return nil, nil, err
	}

	return principal, sess, nil
}

package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/sentinelforge/authcore/otp"
	"github.com/sentinelforge/authcore/password"
	"github.com/sentinelforge/authcore/token"
)

// ChangePassword verifies the current password, stores the new hash,
// revokes every session the principal holds, and bootstraps a fresh
// session for the caller so only their current device stays signed in.
func (e *Engine) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) (*AuthResponse, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if oldPassword == "" || newPassword == "" {
		return nil, e.fail(ctx, ErrInvalidCredentials)
	}

	claims, err := e.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, e.fail(ctx, ErrTokenInvalid)
	}

	principal, err := e.principals.GetByID(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		return nil, e.fail(ctx, ErrInvalidCredentials)
	}

	ok, err := e.hasher.Verify(oldPassword, principal.PasswordHash)
	if err != nil || !ok {
		return nil, e.fail(ctx, ErrInvalidCredentials)
	}

	same, err := e.hasher.Verify(newPassword, principal.PasswordHash)
	if err == nil && same {
		return nil, e.fail(ctx, ErrPasswordReuse)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return nil, e.fail(ctx, err)
	}
	if err := e.principals.UpdatePasswordHash(ctx, principal.TenantID, principal.ID, newHash); err != nil {
		return nil, e.fail(ctx, err)
	}
	principal.PasswordHash = newHash

	revoked, err := e.sessions.RevokeAllForPrincipal(ctx, principal.TenantID, principal.ID)
	if err != nil {
		return nil, e.fail(ctx, err)
	}
	e.metricInc(MetricSessionInvalidated)

	// The caller keeps a live session: bootstrap a fresh one on the
	// same device, already past whatever MFA state the old one held.
	data, err := e.buildSessionData(ctx, principal, true)
	if err != nil {
		return nil, e.fail(ctx, err)
	}
	sess, _, err := e.sessions.Create(ctx, principal.TenantID, principal.ID, data, e.deviceFromContext(ctx))
	if err != nil {
		return nil, e.fail(ctx, err)
	}
	e.metricInc(MetricSessionCreated)

	pair, err := e.issueTokens(sess)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitSessions(ctx, EventPasswordChanged, principal.ID, principal.TenantID, revoked)

	return &AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SessionID:    sess.ID,
	}, nil
}

// ForgotPassword issues a password-reset code for the identity behind
// the named provider and emits PasswordResetRequested with the code in
// metadata for the sink to deliver. It returns nil whether or not the
// identity exists, so callers cannot probe for registered accounts.
func (e *Engine) ForgotPassword(ctx context.Context, providerName, identifier string) error {
	if e == nil || e.principals == nil {
		return ErrEngineNotReady
	}

	tenantID := tenantIDFromContext(ctx)
	ip := clientIPFromContext(ctx)

	provider, ok := e.providers[providerName]
	if !ok {
		return e.fail(ctx, ErrProviderNotFound)
	}

	// The request budget is spent before the existence check, so the
	// throttle response is identical for known and unknown identities.
	if err := e.throttle.CheckResetRequest(ctx, tenantID, identifier, ip); err != nil {
		return e.fail(ctx, ErrThrottled)
	}

	principal, err := e.principalByIdentity(ctx, tenantID, provider, identifier)
	if err != nil {
		return nil
	}

	code, err := e.otp.Issue(ctx, tenantID, principal.ID, otp.PurposePasswordReset)
	if err != nil {
		// Swallowed: a backend hiccup must look identical to an
		// unknown identity from the outside.
		log.Print("authcore: password reset code issue failed")
		return nil
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emit(ctx, EventPasswordResetRequested, principal.ID, tenantID, "", map[string]string{
		"provider": provider.Name(),
		"code":     code,
	})

	return nil
}

// VerifyResetCode consumes the reset code and returns a short-lived
// reset token carrying a fingerprint of the current password hash. The
// token self-invalidates the moment the password changes.
func (e *Engine) VerifyResetCode(ctx context.Context, providerName, identifier, code string) (string, error) {
	if e == nil || e.principals == nil {
		return "", ErrEngineNotReady
	}

	tenantID := tenantIDFromContext(ctx)

	provider, ok := e.providers[providerName]
	if !ok {
		return "", e.fail(ctx, ErrProviderNotFound)
	}

	principal, err := e.principalByIdentity(ctx, tenantID, provider, identifier)
	if err != nil {
		return "", e.fail(ctx, ErrOTPInvalid)
	}

	if err := e.otp.Consume(ctx, tenantID, principal.ID, otp.PurposePasswordReset, code); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		if errors.Is(err, otp.ErrCodeNotFound) {
			return "", e.fail(ctx, ErrOTPExpired)
		}
		return "", e.fail(ctx, ErrOTPInvalid)
	}

	resetToken, err := e.tokens.IssueReset(principal.ID, password.Fingerprint(principal.PasswordHash))
	if err != nil {
		return "", e.fail(ctx, err)
	}

	return resetToken, nil
}

// ResetPassword validates the reset token and its hash fingerprint
// against the principal's current hash, then updates the password and
// revokes all sessions and trusted devices.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if newPassword == "" {
		return e.fail(ctx, ErrResetTokenInvalid)
	}

	tenantID := tenantIDFromContext(ctx)

	claims, err := e.tokens.VerifyReset(resetToken)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return e.fail(ctx, ErrResetTokenInvalid)
	}

	principal, err := e.principals.GetByID(ctx, tenantID, claims.Subject)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return e.fail(ctx, ErrResetTokenInvalid)
	}

	// Fingerprint mismatch means the password changed after the token
	// was issued; every outstanding reset token died with it.
	if !password.FingerprintMatches(claims.HashFingerprint, principal.PasswordHash) {
		e.metricInc(MetricPasswordResetFailure)
		return e.fail(ctx, ErrResetTokenInvalid)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := e.principals.UpdatePasswordHash(ctx, tenantID, principal.ID, newHash); err != nil {
		return e.fail(ctx, err)
	}

	revoked, err := e.sessions.RevokeAllForPrincipal(ctx, tenantID, principal.ID)
	if err != nil {
		return e.fail(ctx, err)
	}
	if _, err := e.trust.RevokeAll(ctx, tenantID, principal.ID); err != nil {
		log.Print("authcore: trusted device revocation failed after password reset")
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.emitSessions(ctx, EventPasswordReset, principal.ID, tenantID, revoked)

	return nil
}

// principalByIdentity resolves an identifier through the provider's
// identity links.
func (e *Engine) principalByIdentity(ctx context.Context, tenantID string, provider Provider, identifier string) (*Principal, error) {
	link, err := e.principals.FindIdentity(ctx, tenantID, provider.Name(), identifier)
	if err != nil {
		return nil, err
	}
	return e.principals.GetByID(ctx, tenantID, link.PrincipalID)
}

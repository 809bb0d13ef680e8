package authcore

import (
	"context"
	"time"

	"github.com/sentinelforge/authcore/otp"
	"github.com/sentinelforge/authcore/session"
	"github.com/sentinelforge/authcore/token"
)

// SendMFACode issues a fresh challenge code for the pre-MFA session
// behind the access token and returns the plaintext for delivery by the
// caller. Issuing always invalidates the previous code, so resending is
// safe. Only the "otp" method has codes to send.
func (e *Engine) SendMFACode(ctx context.Context, accessToken, method string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	sess, err := e.pendingMFASession(ctx, accessToken)
	if err != nil {
		return "", e.fail(ctx, err)
	}

	if method == "" {
		method = e.defaultMFAMethod()
	}
	if method != "otp" || !containsString(e.config.MFA.Methods, method) {
		return "", e.fail(ctx, ErrMFACodeInvalid)
	}

	code, err := e.otp.Issue(ctx, sess.TenantID, sess.PrincipalID, otp.PurposeMFA)
	if err != nil {
		return "", e.fail(ctx, err)
	}

	return code, nil
}

// VerifyMFA completes the challenge for the pre-MFA session behind the
// access token. On success the session flips to verified, a full token
// pair is issued, and, when requested, a trusted-device token bound to
// the caller's device fingerprint is minted.
func (e *Engine) VerifyMFA(ctx context.Context, accessToken, method, code string, rememberDevice bool) (*AuthResponse, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.pendingMFASession(ctx, accessToken)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	if method == "" {
		method = e.defaultMFAMethod()
	}
	if !containsString(e.config.MFA.Methods, method) {
		e.metricInc(MetricMFAFailure)
		return nil, e.fail(ctx, ErrMFACodeInvalid)
	}

	switch method {
	case "otp":
		if err := e.otp.Consume(ctx, sess.TenantID, sess.PrincipalID, otp.PurposeMFA, code); err != nil {
			e.metricInc(MetricMFAFailure)
			return nil, e.fail(ctx, ErrMFACodeInvalid)
		}
	case "totp":
		principal, err := e.principals.GetByID(ctx, sess.TenantID, sess.PrincipalID)
		if err != nil {
			e.metricInc(MetricMFAFailure)
			return nil, e.fail(ctx, ErrMFACodeInvalid)
		}
		ok, err := e.totp.VerifyCode(principal.TOTPSecret, code, time.Now())
		if err != nil || !ok {
			e.metricInc(MetricMFAFailure)
			return nil, e.fail(ctx, ErrMFACodeInvalid)
		}
	default:
		e.metricInc(MetricMFAFailure)
		return nil, e.fail(ctx, ErrMFACodeInvalid)
	}

	updated, err := e.sessions.Update(ctx, sess.TenantID, sess.ID, func(data *session.Data) {
		data.IsMFAVerified = true
	})
	if err != nil {
		return nil, e.fail(ctx, sessionError(err))
	}

	pair, err := e.issueTokens(updated)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	resp := &AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SessionID:    updated.ID,
	}

	if rememberDevice {
		trustToken, err := e.trust.Issue(ctx, updated.TenantID, updated.PrincipalID, e.fingerprintFromContext(ctx))
		if err != nil {
			return nil, e.fail(ctx, err)
		}
		resp.TrustToken = trustToken
		e.metricInc(MetricTrustTokenIssued)
	}

	e.metricInc(MetricMFAVerified)
	e.emit(ctx, EventTwoFactorVerified, updated.PrincipalID, updated.TenantID, updated.ID, map[string]string{
		"method": method,
	})

	return resp, nil
}

// RevokeTrustedDevice drops a single trusted-device token so the next
// login from that device re-enters the MFA challenge.
func (e *Engine) RevokeTrustedDevice(ctx context.Context, trustToken string) error {
	if e == nil || e.trust == nil {
		return ErrEngineNotReady
	}
	return e.fail(ctx, e.trust.Revoke(ctx, tenantIDFromContext(ctx), trustToken))
}

// RevokeAllTrustedDevices drops every trusted-device grant the
// principal holds.
func (e *Engine) RevokeAllTrustedDevices(ctx context.Context, principalID string) (int, error) {
	if e == nil || e.trust == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.trust.RevokeAll(ctx, tenantIDFromContext(ctx), principalID)
	return n, e.fail(ctx, err)
}

// pendingMFASession resolves the access token to a session that still
// has an unanswered MFA challenge.
func (e *Engine) pendingMFASession(ctx context.Context, accessToken string) (*session.Session, error) {
	claims, err := e.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessions.Get(ctx, claims.TenantID, claims.SessionID, false)
	if err != nil {
		return nil, sessionError(err)
	}
	if sess.PrincipalID != claims.Subject {
		return nil, ErrSessionNotFound
	}
	if sess.Data.IsMFAVerified {
		return nil, ErrMFANotRequired
	}

	return sess, nil
}

package authcore

import (
	"context"

	"github.com/sentinelforge/authcore/token"
)

// Logout revokes the session behind the access token. Logging out an
// already-revoked session is a no-op, not an error.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return e.fail(ctx, ErrTokenInvalid)
	}

	return e.LogoutSession(ctx, claims.TenantID, claims.SessionID, claims.Subject)
}

// LogoutSession revokes one session by ID. The event is emitted before
// revocation so listeners can still read the session's data.
func (e *Engine) LogoutSession(ctx context.Context, tenantID, sessionID, principalID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	e.emit(ctx, EventLoggedOut, principalID, tenantID, sessionID, nil)

	if err := e.sessions.Revoke(ctx, tenantID, sessionID); err != nil {
		return e.fail(ctx, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// LogoutAll revokes every session the principal holds. The event
// carries the IDs of the sessions destroyed.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	tenantID := tenantIDFromContext(ctx)

	revoked, err := e.sessions.RevokeAllForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return e.fail(ctx, err)
	}

	e.metricInc(MetricLogoutAll)
	e.metricInc(MetricSessionInvalidated)
	e.emitSessions(ctx, EventLoggedOutAll, principalID, tenantID, revoked)
	return nil
}

// LogoutOthers revokes every session the principal holds except the one
// behind the access token.
func (e *Engine) LogoutOthers(ctx context.Context, accessToken string) ([]string, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, e.fail(ctx, ErrTokenInvalid)
	}

	revoked, err := e.sessions.RevokeOthers(ctx, claims.TenantID, claims.Subject, claims.SessionID)
	if err != nil {
		return revoked, e.fail(ctx, err)
	}

	if len(revoked) > 0 {
		e.metricInc(MetricSessionInvalidated)
		e.emitSessions(ctx, EventLoggedOutAll, claims.Subject, claims.TenantID, revoked)
	}
	return revoked, nil
}

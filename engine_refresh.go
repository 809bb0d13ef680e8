package authcore

import (
	"context"
	"errors"

	"github.com/sentinelforge/authcore/session"
	"github.com/sentinelforge/authcore/token"
)

// Refresh exchanges a refresh token for a new pair. Claims are
// re-derived from live session state, so role and MFA changes since the
// token was issued are picked up, and a revoked session fails the
// exchange regardless of the token's remaining lifetime.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, e.fail(ctx, ErrRefreshTokenInvalid)
	}

	sess, err := e.sessions.Refresh(ctx, claims.TenantID, claims.SessionID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		switch {
		case errors.Is(err, session.ErrExpired):
			return nil, e.fail(ctx, ErrRefreshTokenExpired)
		case errors.Is(err, session.ErrNotFound):
			return nil, e.fail(ctx, ErrRefreshTokenInvalid)
		default:
			return nil, e.fail(ctx, err)
		}
	}
	if sess.PrincipalID != claims.Subject {
		e.metricInc(MetricRefreshFailure)
		return nil, e.fail(ctx, ErrRefreshTokenInvalid)
	}

	pair, err := e.issueTokens(sess)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, e.fail(ctx, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emit(ctx, EventRefreshToken, sess.PrincipalID, sess.TenantID, sess.ID, nil)

	return &AuthResponse{
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		IsRequiresMFA: false,
		SessionID:     sess.ID,
	}, nil
}

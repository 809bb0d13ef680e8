package authcore

import (
	"context"
	"errors"

	"github.com/sentinelforge/authcore/internal"
	"github.com/sentinelforge/authcore/internal/events"
	"github.com/sentinelforge/authcore/internal/rate"
	"github.com/sentinelforge/authcore/otp"
	"github.com/sentinelforge/authcore/password"
	"github.com/sentinelforge/authcore/session"
	"github.com/sentinelforge/authcore/token"
	"github.com/sentinelforge/authcore/trust"
)

// Engine orchestrates the auth flows over pluggable providers and
// stores. Build one through the Builder; a built Engine is immutable
// and safe for concurrent use.
type Engine struct {
	config     Config
	providers  map[string]Provider
	principals PrincipalStore
	sessions   *session.Manager
	otp        *otp.Store
	trust      *trust.Registry
	throttle   *rate.Limiter
	hasher     *password.Hasher
	tokens     *token.Issuer
	dispatcher *events.Dispatcher
	metrics    *Metrics
	totp       *totpVerifier
	hooks      Hooks
}

// Close flushes the async event dispatcher, if one is running.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// EventsDropped reports events discarded under async backpressure.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Sessions exposes the session manager for introspection tooling.
func (e *Engine) Sessions() *session.Manager {
	if e == nil {
		return nil
	}
	return e.sessions
}

// CleanupExpiredSessions sweeps the tenant's expired session records
// and returns how many were purged. Intended for periodic out-of-band
// runs.
func (e *Engine) CleanupExpiredSessions(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.CleanupExpired(ctx, tenantIDFromContext(ctx))
}

// ValidateAccess verifies an access token and resolves it against live
// session state, so revoked sessions and stale role claims fail even
// while the token signature is still valid.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, e.fail(ctx, ErrTokenInvalid)
	}

	sess, err := e.sessions.Get(ctx, claims.TenantID, claims.SessionID, true)
	if err != nil {
		return nil, e.fail(ctx, sessionError(err))
	}
	if sess.PrincipalID != claims.Subject {
		return nil, e.fail(ctx, ErrSessionNotFound)
	}

	return &AuthResult{
		PrincipalID: sess.PrincipalID,
		TenantID:    sess.TenantID,
		SessionID:   sess.ID,
		Roles:       sess.Data.Roles,
		Permissions: sess.Data.Permissions,
		MFAVerified: sess.Data.IsMFAVerified,
	}, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// fail routes every flow error through the TransformError hook before
// it reaches the caller.
func (e *Engine) fail(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if e != nil && e.hooks.TransformError != nil {
		if replaced := e.hooks.TransformError(ctx, err); replaced != nil {
			return replaced
		}
	}
	return err
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrExpired):
		return ErrSessionExpired
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	default:
		return err
	}
}

func (e *Engine) deviceFromContext(ctx context.Context) session.Device {
	return session.Device{
		Name:      deviceNameFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	}
}

func (e *Engine) fingerprintFromContext(ctx context.Context) [32]byte {
	return internal.DeviceFingerprint(userAgentFromContext(ctx), clientIPFromContext(ctx))
}

// buildSessionData snapshots the principal into a session data bag and
// runs the CustomizeSessionData hook.
func (e *Engine) buildSessionData(ctx context.Context, p *Principal, mfaVerified bool) (session.Data, error) {
	data := session.Data{
		Roles:         cloneStrings(p.Roles),
		Permissions:   cloneStrings(p.Permissions),
		IsMFAVerified: mfaVerified,
	}

	if e.hooks.CustomizeSessionData != nil {
		if err := e.hooks.CustomizeSessionData(ctx, p, &data); err != nil {
			return session.Data{}, err
		}
	}

	return data, nil
}

func (e *Engine) issueTokens(sess *session.Session) (token.Pair, error) {
	return e.tokens.IssuePair(token.Payload{
		PrincipalID: sess.PrincipalID,
		SessionID:   sess.ID,
		TenantID:    sess.TenantID,
		Roles:       sess.Data.Roles,
		MFAVerified: sess.Data.IsMFAVerified,
		Verified:    true,
	})
}

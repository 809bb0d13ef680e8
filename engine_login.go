package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/sentinelforge/authcore/internal"
	"github.com/sentinelforge/authcore/internal/rate"
	"github.com/sentinelforge/authcore/session"
)

// Login authenticates against a named provider and bootstraps a
// session. When the principal has MFA enabled and no valid
// trusted-device token is presented, the returned pair is pre-MFA and
// the response signals the pending challenge.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if e == nil || e.principals == nil {
		return nil, ErrEngineNotReady
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()
	}

	tenantID := tenantIDFromContext(ctx)
	ip := clientIPFromContext(ctx)

	provider, ok := e.providers[req.Provider]
	if !ok {
		return nil, e.fail(ctx, ErrProviderNotFound)
	}

	for _, field := range provider.RequiredFields() {
		if req.Credentials[field] == "" {
			e.metricInc(MetricLoginFailure)
			return nil, e.fail(ctx, ErrInvalidCredentials)
		}
	}

	identifier := req.Credentials[provider.LinkField()]

	if err := e.throttle.CheckLogin(ctx, tenantID, identifier, ip); err != nil {
		e.metricInc(MetricLoginThrottled)
		return nil, e.fail(ctx, ErrThrottled)
	}

	identity, err := provider.Validate(ctx, tenantID, req.Credentials)
	if err != nil {
		if recErr := e.throttle.RecordLoginFailure(ctx, tenantID, identifier, ip); recErr != nil && errors.Is(recErr, rate.ErrThrottled) {
			e.metricInc(MetricLoginThrottled)
			return nil, e.fail(ctx, ErrThrottled)
		}
		e.metricInc(MetricLoginFailure)
		return nil, e.fail(ctx, ErrInvalidCredentials)
	}

	principal, err := e.resolvePrincipal(ctx, tenantID, provider, identity)
	if err != nil {
		if recErr := e.throttle.RecordLoginFailure(ctx, tenantID, identifier, ip); recErr != nil && errors.Is(recErr, rate.ErrThrottled) {
			e.metricInc(MetricLoginThrottled)
			return nil, e.fail(ctx, ErrThrottled)
		}
		e.metricInc(MetricLoginFailure)
		return nil, e.fail(ctx, err)
	}

	if !principal.Active {
		e.metricInc(MetricLoginFailure)
		return nil, e.fail(ctx, ErrAccountInactive)
	}

	resp, sess, err := e.bootstrapSession(ctx, principal, provider.SkipMFA())
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, e.fail(ctx, err)
	}

	if err := e.throttle.ResetLogin(ctx, tenantID, identifier, ip); err != nil {
		// Best effort: a stuck failure counter self-heals on cooldown.
		e.metricInc(MetricLoginFailure)
	}

	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, EventLoggedIn, principal.ID, tenantID, sess.ID, map[string]string{
		"provider": provider.Name(),
	})

	return resp, nil
}

// resolvePrincipal maps a provider identity to a principal, creating
// one on first social login when the provider allows it.
func (e *Engine) resolvePrincipal(ctx context.Context, tenantID string, provider Provider, identity *ProviderIdentity) (*Principal, error) {
	link, err := e.principals.FindIdentity(ctx, tenantID, provider.Name(), identity.ProviderUserID)
	if err == nil {
		principal, err := e.principals.GetByID(ctx, tenantID, link.PrincipalID)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
		return principal, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}

	if !provider.AutoProvision() {
		return nil, ErrInvalidCredentials
	}

	id, err := internal.NewID()
	if err != nil {
		return nil, err
	}

	principal := &Principal{
		ID:       id.String(),
		TenantID: tenantID,
		Active:   true,
		Metadata: identity.Metadata,
	}
	switch provider.LinkField() {
	case "phone":
		principal.Phone = identity.ProviderUserID
	default:
		principal.Email = identity.ProviderUserID
	}

	if err := e.principals.Create(ctx, principal); err != nil {
		return nil, err
	}
	if err := e.principals.LinkIdentity(ctx, &IdentityLink{
		Provider:       provider.Name(),
		ProviderUserID: identity.ProviderUserID,
		PrincipalID:    principal.ID,
		TenantID:       tenantID,
	}); err != nil {
		e.rollbackSignup(ctx, principal, nil)
		return nil, err
	}

	return principal, nil
}

// bootstrapSession runs the MFA decision, creates the session, and
// issues the token pair. Session creation happens before token issuance
// so a pending challenge still has a session to resume against.
func (e *Engine) bootstrapSession(ctx context.Context, principal *Principal, skipMFA bool) (*AuthResponse, *session.Session, error) {
	tenantID := tenantIDFromContext(ctx)

	requiresMFA := principal.MFAEnabled && !skipMFA && len(e.config.MFA.Methods) > 0
	mfaVerified := !requiresMFA
	bypassed := false

	if requiresMFA {
		if trustToken := trustTokenFromContext(ctx); trustToken != "" {
			err := e.trust.Validate(ctx, tenantID, principal.ID, trustToken, e.fingerprintFromContext(ctx))
			if err == nil {
				mfaVerified = true
				bypassed = true
				e.metricInc(MetricMFABypassed)
			} else {
				e.metricInc(MetricTrustTokenRejected)
			}
		}
	}
	if requiresMFA && !bypassed {
		e.metricInc(MetricMFARequired)
	}

	data, err := e.buildSessionData(ctx, principal, mfaVerified)
	if err != nil {
		return nil, nil, err
	}

	sess, evicted, err := e.sessions.Create(ctx, tenantID, principal.ID, data, e.deviceFromContext(ctx))
	if err != nil {
		return nil, nil, err
	}

	e.metricInc(MetricSessionCreated)
	if len(evicted) > 0 {
		e.metrics.Add(MetricSessionEvicted, uint64(len(evicted)))
	}

	pair, err := e.issueTokens(sess)
	if err != nil {
		return nil, nil, err
	}

	resp := &AuthResponse{
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		IsRequiresMFA: requiresMFA && !mfaVerified,
		SessionID:     sess.ID,
	}
	if resp.IsRequiresMFA {
		resp.MFAMethods = cloneStrings(e.config.MFA.Methods)
		resp.DefaultMFAMethod = e.defaultMFAMethod()
	}

	return resp, sess, nil
}

func (e *Engine) defaultMFAMethod() string {
	if e.config.MFA.DefaultMethod != "" {
		return e.config.MFA.DefaultMethod
	}
	if len(e.config.MFA.Methods) > 0 {
		return e.config.MFA.Methods[0]
	}
	return ""
}

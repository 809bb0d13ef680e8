package authcore

import (
	"context"
	"log"
	"strings"

	"github.com/sentinelforge/authcore/internal"
)

// Signup registers a new principal. Identity uniqueness is checked for
// every eligible provider before the principal is created, so a
// conflict on any identity fails the whole signup. When auto-login is
// enabled the response carries a first session's token pair.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if e == nil || e.principals == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Registration.Enabled {
		return nil, e.fail(ctx, ErrRegistrationDisabled)
	}

	tenantID := tenantIDFromContext(ctx)

	if req.Email == "" && req.Phone == "" {
		return nil, e.fail(ctx, ErrInvalidCredentials)
	}

	// Fail fast on any identity conflict before creating anything.
	links := e.eligibleLinks(req)
	for _, link := range links {
		_, err := e.principals.FindIdentity(ctx, tenantID, link.provider.Name(), link.identifier)
		if err == nil {
			e.metricInc(MetricSignupConflict)
			return nil, e.fail(ctx, conflictError(link.provider.LinkField()))
		}
	}

	id, err := internal.NewID()
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	principal := &Principal{
		ID:       id.String(),
		TenantID: tenantID,
		Email:    req.Email,
		Phone:    req.Phone,
		Active:   true,
		Metadata: req.Metadata,
	}

	if req.Password != "" {
		hash, err := e.hasher.Hash(req.Password)
		if err != nil {
			return nil, e.fail(ctx, err)
		}
		principal.PasswordHash = hash
	}

	if err := e.principals.Create(ctx, principal); err != nil {
		return nil, e.fail(ctx, err)
	}

	var linked []*IdentityLink
	for _, link := range links {
		identity := &IdentityLink{
			Provider:       link.provider.Name(),
			ProviderUserID: link.identifier,
			PrincipalID:    principal.ID,
			TenantID:       tenantID,
		}
		if err := e.principals.LinkIdentity(ctx, identity); err != nil {
			e.rollbackSignup(ctx, principal, linked)
			return nil, e.fail(ctx, err)
		}
		linked = append(linked, identity)
	}

	// PostSignup may assign roles; run it before the first session so
	// that session already reflects final role state.
	if e.hooks.PostSignup != nil {
		if err := e.hooks.PostSignup(ctx, principal); err != nil {
			e.rollbackSignup(ctx, principal, linked)
			return nil, e.fail(ctx, err)
		}
		if err := e.principals.Update(ctx, principal); err != nil {
			e.rollbackSignup(ctx, principal, linked)
			return nil, e.fail(ctx, err)
		}
	}

	if req.Guard != "" && !hasGuardRole(principal.Roles, req.Guard) {
		e.rollbackSignup(ctx, principal, linked)
		return nil, e.fail(ctx, ErrForbidden)
	}

	e.metricInc(MetricSignupSuccess)

	if !e.config.Registration.AutoLogin {
		e.emit(ctx, EventRegistered, principal.ID, tenantID, "", nil)
		return &AuthResponse{Message: "registration successful"}, nil
	}

	resp, sess, err := e.bootstrapSession(ctx, principal, false)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	e.emit(ctx, EventRegistered, principal.ID, tenantID, sess.ID, nil)

	return resp, nil
}

type signupLink struct {
	provider   Provider
	identifier string
}

// eligibleLinks pairs each supplied identity field with the registered
// provider that keys off it.
func (e *Engine) eligibleLinks(req SignupRequest) []signupLink {
	var links []signupLink
	for _, p := range e.providers {
		switch p.LinkField() {
		case "email":
			if req.Email != "" {
				links = append(links, signupLink{provider: p, identifier: req.Email})
			}
		case "phone":
			if req.Phone != "" {
				links = append(links, signupLink{provider: p, identifier: req.Phone})
			}
		}
	}
	return links
}

func conflictError(linkField string) error {
	if linkField == "phone" {
		return ErrPhoneAlreadyExists
	}
	return ErrEmailAlreadyExists
}

func hasGuardRole(roles []string, guard string) bool {
	prefix := guard + ":"
	for _, role := range roles {
		if role == guard || strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

// rollbackSignup undoes a partially-completed signup. Best effort: the
// principal row is the anchor, so it is removed last.
func (e *Engine) rollbackSignup(ctx context.Context, p *Principal, linked []*IdentityLink) {
	for _, link := range linked {
		if err := e.principals.UnlinkIdentity(ctx, link.TenantID, link.Provider, link.ProviderUserID); err != nil {
			log.Print("authcore: signup rollback unlink failed")
		}
	}
	if err := e.principals.Delete(ctx, p.TenantID, p.ID); err != nil {
		log.Print("authcore: signup rollback delete failed")
	}
}

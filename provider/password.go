package provider

import (
	"context"
	"log"

	"github.com/sentinelforge/authcore"
	"github.com/sentinelforge/authcore/password"
)

// Password authenticates an email plus password pair against the
// principal store. The provider user id is the email itself.
type Password struct {
	store          authcore.PrincipalStore
	hasher         *password.Hasher
	upgradeOnLogin bool
}

// PasswordOption adjusts a Password provider at construction.
type PasswordOption func(*Password)

// WithUpgradeOnLogin rehashes the stored password after a successful
// login when the stored hash uses weaker parameters than the hasher's.
func WithUpgradeOnLogin() PasswordOption {
	return func(p *Password) { p.upgradeOnLogin = true }
}

func NewPassword(store authcore.PrincipalStore, hasher *password.Hasher, opts ...PasswordOption) *Password {
	p := &Password{store: store, hasher: hasher}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Password) Name() string             { return "password" }
func (p *Password) RequiredFields() []string { return []string{"email", "password"} }
func (p *Password) SkipMFA() bool            { return false }
func (p *Password) LinkField() string        { return "email" }
func (p *Password) AutoProvision() bool      { return false }

func (p *Password) Validate(ctx context.Context, tenantID string, creds authcore.Credentials) (*authcore.ProviderIdentity, error) {
	email := creds["email"]
	pass := creds["password"]
	if email == "" || pass == "" {
		return nil, authcore.ErrInvalidCredentials
	}

	principal, err := p.principalFor(ctx, tenantID, email)
	if err != nil {
		return nil, authcore.ErrInvalidCredentials
	}
	if principal.PasswordHash == "" {
		// Social-only account; password login is not enabled for it.
		return nil, authcore.ErrInvalidCredentials
	}

	ok, err := p.hasher.Verify(pass, principal.PasswordHash)
	if err != nil || !ok {
		return nil, authcore.ErrInvalidCredentials
	}

	if p.upgradeOnLogin {
		p.maybeUpgradeHash(ctx, principal, pass)
	}

	return &authcore.ProviderIdentity{ProviderUserID: email}, nil
}

func (p *Password) principalFor(ctx context.Context, tenantID, email string) (*authcore.Principal, error) {
	link, err := p.store.FindIdentity(ctx, tenantID, p.Name(), email)
	if err != nil {
		return nil, err
	}
	return p.store.GetByID(ctx, tenantID, link.PrincipalID)
}

func (p *Password) maybeUpgradeHash(ctx context.Context, principal *authcore.Principal, pass string) {
	needs, err := p.hasher.NeedsUpgrade(principal.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := p.hasher.Hash(pass)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	// Best effort; a failed rehash must not block the login.
	if err := p.store.UpdatePasswordHash(ctx, principal.TenantID, principal.ID, upgraded); err != nil {
		log.Print("authcore: password hash upgrade update failed")
	}
}

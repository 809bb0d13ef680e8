package provider

import (
	"context"

	"github.com/sentinelforge/authcore"
	"github.com/sentinelforge/authcore/password"
)

// Phone authenticates a phone number plus password pair. Identical to
// the Password provider except keyed by phone, so a principal can carry
// both login methods side by side.
type Phone struct {
	store  authcore.PrincipalStore
	hasher *password.Hasher
}

func NewPhone(store authcore.PrincipalStore, hasher *password.Hasher) *Phone {
	return &Phone{store: store, hasher: hasher}
}

func (p *Phone) Name() string             { return "phone" }
func (p *Phone) RequiredFields() []string { return []string{"phone", "password"} }
func (p *Phone) SkipMFA() bool            { return false }
func (p *Phone) LinkField() string        { return "phone" }
func (p *Phone) AutoProvision() bool      { return false }

func (p *Phone) Validate(ctx context.Context, tenantID string, creds authcore.Credentials) (*authcore.ProviderIdentity, error) {
	phone := creds["phone"]
	pass := creds["password"]
	if phone == "" || pass == "" {
		return nil, authcore.ErrInvalidCredentials
	}

	link, err := p.store.FindIdentity(ctx, tenantID, p.Name(), phone)
	if err != nil {
		return nil, authcore.ErrInvalidCredentials
	}
	principal, err := p.store.GetByID(ctx, tenantID, link.PrincipalID)
	if err != nil {
		return nil, authcore.ErrInvalidCredentials
	}
	if principal.PasswordHash == "" {
		return nil, authcore.ErrInvalidCredentials
	}

	ok, err := p.hasher.Verify(pass, principal.PasswordHash)
	if err != nil || !ok {
		return nil, authcore.ErrInvalidCredentials
	}

	return &authcore.ProviderIdentity{ProviderUserID: phone}, nil
}

package provider

import (
	"context"

	"github.com/sentinelforge/authcore"
)

// ExchangeFunc validates an upstream access key (an OAuth access token,
// an SSO assertion reference, or similar) and returns the stable
// external identity it proves. The handshake itself belongs to the
// caller; this package only consumes its result.
type ExchangeFunc func(ctx context.Context, accessKey string) (*authcore.ProviderIdentity, error)

// AccessKey wraps an upstream identity service as a provider. Logins
// through it skip MFA, since the upstream already performed its own
// authentication, and auto-provision a principal on first sight.
type AccessKey struct {
	name      string
	linkField string
	exchange  ExchangeFunc
}

// NewAccessKey builds an access-key provider. name keys provider
// selection ("google", "corp-sso"); linkField is "email" or "phone"
// and controls which principal field auto-provisioning fills.
func NewAccessKey(name, linkField string, exchange ExchangeFunc) *AccessKey {
	if linkField != "phone" {
		linkField = "email"
	}
	return &AccessKey{name: name, linkField: linkField, exchange: exchange}
}

func (a *AccessKey) Name() string             { return a.name }
func (a *AccessKey) RequiredFields() []string { return []string{"accessKey"} }
func (a *AccessKey) SkipMFA() bool            { return true }
func (a *AccessKey) LinkField() string        { return a.linkField }
func (a *AccessKey) AutoProvision() bool      { return true }

func (a *AccessKey) Validate(ctx context.Context, _ string, creds authcore.Credentials) (*authcore.ProviderIdentity, error) {
	key := creds["accessKey"]
	if key == "" || a.exchange == nil {
		return nil, authcore.ErrInvalidCredentials
	}

	identity, err := a.exchange(ctx, key)
	if err != nil || identity == nil || identity.ProviderUserID == "" {
		return nil, authcore.ErrInvalidCredentials
	}

	return identity, nil
}

package authcore

import "context"

// Principal is the authenticated entity: a user account with optional
// email and phone identities, an optional password hash (nil for
// social-only accounts), and an arbitrary metadata bag.
type Principal struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenantId"`
	Email           string            `json:"email,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	PasswordHash    string            `json:"-"`
	EmailVerifiedAt int64             `json:"emailVerifiedAt,omitempty"`
	PhoneVerifiedAt int64             `json:"phoneVerifiedAt,omitempty"`
	Active          bool              `json:"active"`
	MFAEnabled      bool              `json:"mfaEnabled"`
	TOTPSecret      []byte            `json:"-"`
	Roles           []string          `json:"roles,omitempty"`
	Permissions     []string          `json:"permissions,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// IdentityLink binds one provider identity to exactly one principal.
// Unique per (provider, provider-user-id, tenant).
type IdentityLink struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"providerUserId"`
	PrincipalID    string `json:"principalId"`
	TenantID       string `json:"tenantId"`
}

// PrincipalStore is the persistence boundary for principals and their
// identity links. Backing technology is the caller's choice; lookups
// that miss return ErrPrincipalNotFound or ErrIdentityNotFound.
type PrincipalStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*Principal, error)
	Create(ctx context.Context, p *Principal) error
	Update(ctx context.Context, p *Principal) error
	UpdatePasswordHash(ctx context.Context, tenantID, id, hash string) error
	Delete(ctx context.Context, tenantID, id string) error

	FindIdentity(ctx context.Context, tenantID, provider, providerUserID string) (*IdentityLink, error)
	LinkIdentity(ctx context.Context, link *IdentityLink) error
	UnlinkIdentity(ctx context.Context, tenantID, provider, providerUserID string) error
}

// Credentials is the raw field map a provider validates, already
// shape-checked by the transport layer.
type Credentials map[string]string

// ProviderIdentity is the stable external identity a provider maps a
// credential set to.
type ProviderIdentity struct {
	ProviderUserID string
	Metadata       map[string]string
}

// Provider validates one login method's credentials and maps them to a
// stable identity. One implementation per method.
type Provider interface {
	// Name is the registration key used to select the provider.
	Name() string

	// RequiredFields lists the credential fields that must be present.
	RequiredFields() []string

	// Validate checks the credentials and returns the external
	// identity, or ErrInvalidCredentials.
	Validate(ctx context.Context, tenantID string, creds Credentials) (*ProviderIdentity, error)

	// SkipMFA marks providers considered inherently strong, such as a
	// trusted SSO; their logins never enter the MFA challenge path.
	SkipMFA() bool

	// LinkField names the principal field (email or phone) that
	// auto-provisioning keys identity creation off.
	LinkField() string

	// AutoProvision allows creating a principal on first login when no
	// identity link exists yet.
	AutoProvision() bool
}

// AuthResponse is the success shape every auth flow returns. When
// IsRequiresMFA is set the token pair is pre-MFA: it authorizes only
// the challenge endpoints until verification completes.
type AuthResponse struct {
	AccessToken      string   `json:"accessToken,omitempty"`
	RefreshToken     string   `json:"refreshToken,omitempty"`
	IsRequiresMFA    bool     `json:"isRequiresMfa"`
	MFAMethods       []string `json:"mfaMethods,omitempty"`
	DefaultMFAMethod string   `json:"defaultMfaMethod,omitempty"`
	TrustToken       string   `json:"trustToken,omitempty"`
	SessionID        string   `json:"sessionId,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// SignupRequest carries everything Signup needs. Email or Phone must be
// set; Guard optionally restricts the signup to principals that end up
// holding a role under that guard.
type SignupRequest struct {
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Password string            `json:"password,omitempty"`
	Guard    string            `json:"guard,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoginRequest selects a provider and hands it the credential fields.
type LoginRequest struct {
	Provider    string      `json:"provider"`
	Credentials Credentials `json:"credentials"`
}

// AuthResult is the decoded view of a validated access token, backed by
// live session state.
type AuthResult struct {
	PrincipalID string   `json:"principalId"`
	TenantID    string   `json:"tenantId"`
	SessionID   string   `json:"sessionId"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	MFAVerified bool     `json:"mfaVerified"`
}

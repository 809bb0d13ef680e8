package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Type discriminates the three token kinds the issuer produces. A token
// presented for the wrong purpose always fails verification.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
	TypeReset   Type = "reset"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrWrongTokenUse = errors.New("token presented for wrong use")
)

// Config holds issuer TTLs and key material.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Issuer signs and verifies engine tokens. Instances are immutable after
// construction and safe for concurrent use.
type Issuer struct {
	config Config
}

// Claims is the payload carried by access and refresh tokens. The
// subject registered claim holds the principal ID.
type Claims struct {
	SessionID   string   `json:"sid"`
	TenantID    string   `json:"tid,omitempty"`
	Use         Type     `json:"use"`
	Roles       []string `json:"roles,omitempty"`
	MFAVerified bool     `json:"mfv,omitempty"`
	Verified    bool     `json:"vrf,omitempty"`
	jwt.RegisteredClaims
}

// ResetClaims is the payload of a password-reset token. HashFingerprint
// is a short prefix of the principal's password hash at issue time; the
// caller must re-compare it before honoring the token.
type ResetClaims struct {
	Use             Type   `json:"use"`
	HashFingerprint string `json:"hfp"`
	jwt.RegisteredClaims
}

// Payload is the engine-side view of what goes into a token pair.
type Payload struct {
	PrincipalID string
	SessionID   string
	TenantID    string
	Roles       []string
	MFAVerified bool
	Verified    bool
}

// Pair is one issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 15 * time.Minute
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	// Negative disables the future-IAT check in checkIAT.
	if cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Issuer{config: cfg}, nil
}

// IssuePair signs an access and a refresh token for the same payload.
// Both carry the session ID; only their TTL and use claim differ.
func (i *Issuer) IssuePair(p Payload) (Pair, error) {
	access, err := i.sign(p, TypeAccess, i.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}

	refresh, err := i.sign(p, TypeRefresh, i.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}

	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) sign(p Payload, use Type, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID:   p.SessionID,
		TenantID:    p.TenantID,
		Use:         use,
		Roles:       p.Roles,
		MFAVerified: p.MFAVerified,
		Verified:    p.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.PrincipalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	t := jwt.NewWithClaims(i.method(), claims)

	key, err := i.signKey()
	if err != nil {
		return "", err
	}

	return t.SignedString(key)
}

// Verify parses a token and requires it to carry the expected use claim.
func (i *Issuer) Verify(tokenStr string, expected Type) (*Claims, error) {
	token, err := i.parse(tokenStr, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := i.checkIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	if claims.Use != expected {
		return nil, ErrWrongTokenUse
	}

	return claims, nil
}

// IssueReset signs a password-reset token binding the principal to the
// fingerprint of its current password hash.
func (i *Issuer) IssueReset(principalID, hashFingerprint string) (string, error) {
	now := time.Now()
	claims := ResetClaims{
		Use:             TypeReset,
		HashFingerprint: hashFingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.ResetTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}

	t := jwt.NewWithClaims(i.method(), claims)

	key, err := i.signKey()
	if err != nil {
		return "", err
	}

	return t.SignedString(key)
}

// VerifyReset parses a password-reset token. The fingerprint check
// against the principal's live hash is the caller's responsibility.
func (i *Issuer) VerifyReset(tokenStr string) (*ResetClaims, error) {
	token, err := i.parse(tokenStr, &ResetClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := i.checkIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	if claims.Use != TypeReset {
		return nil, ErrWrongTokenUse
	}

	return claims, nil
}

func (i *Issuer) parse(tokenStr string, claims jwt.Claims) (*jwt.Token, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}

	parser := jwt.NewParser(options...)
	return parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return i.verifyKey()
	})
}

func (i *Issuer) checkIAT(iat *jwt.NumericDate) error {
	if iat == nil || i.config.MaxFutureIAT <= 0 {
		return nil
	}
	if iat.Time.After(time.Now().Add(i.config.MaxFutureIAT)) {
		return ErrInvalidToken
	}
	return nil
}

func (i *Issuer) method() jwt.SigningMethod {
	switch i.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (i *Issuer) signKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(i.config.PrivateKey)
	}
}

func (i *Issuer) verifyKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPublicKey(i.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

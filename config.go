package authcore

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Zero values fall back to the
// defaults documented per field; Validate rejects combinations that
// cannot work.
type Config struct {
	Session      SessionConfig
	MFA          MFAConfig
	Token        TokenConfig
	Registration RegistrationConfig
	Password     PasswordConfig
	Events       EventsConfig
	Metrics      MetricsConfig
	Throttle     ThrottleConfig
}

// SessionConfig controls session lifetime and caps.
type SessionConfig struct {
	// Expiry is the session lifetime, default 7 days. With Sliding it
	// is the idle window.
	Expiry time.Duration
	// MaxPerUser caps live sessions per principal, default 10. Zero
	// after explicit configuration means unlimited.
	MaxPerUser int
	// Sliding extends expiry on each authenticated access. Default true.
	Sliding bool
	// RedisPrefix namespaces the session keys. Default "acs".
	RedisPrefix string
}

// MFAConfig controls the second-factor challenge machinery.
type MFAConfig struct {
	// Methods lists the enabled challenge methods ("otp", "totp").
	// Empty disables MFA entirely regardless of per-principal flags.
	Methods []string
	// DefaultMethod is presented to clients when a challenge is
	// required. Defaults to the first enabled method.
	DefaultMethod string
	// OTPLength is the numeric code length, default 6.
	OTPLength int
	// OTPExpiry is the code lifetime, default 15 minutes.
	OTPExpiry time.Duration
	// OTPMaxAttempts bounds failed verifications per code, default 5.
	OTPMaxAttempts int
	// TrustedDeviceTTL is how long a remembered device bypasses MFA,
	// default 30 days.
	TrustedDeviceTTL time.Duration
	// BindTrustFingerprint rejects trust tokens presented from a
	// device whose user agent and IP no longer match.
	BindTrustFingerprint bool
	// TOTPPeriod is the TOTP step in seconds, default 30.
	TOTPPeriod int
	// TOTPSkew is the accepted step drift either side, default 1.
	TOTPSkew int
	// TOTPIssuer names this service in provisioning URIs.
	TOTPIssuer string
}

// TokenConfig controls signing and lifetimes for issued tokens.
type TokenConfig struct {
	// AccessTTL is the access token lifetime, default 15 minutes.
	AccessTTL time.Duration
	// RefreshTTL is the refresh token lifetime, default 7 days.
	RefreshTTL time.Duration
	// ResetTTL is the password-reset token lifetime, default 15 minutes.
	ResetTTL time.Duration
	// SigningMethod is "ed25519" (default) or "hs256".
	SigningMethod string
	// PrivateKey is the signing key: ed25519 seed or PEM, or the HMAC
	// secret for hs256.
	PrivateKey []byte
	// PublicKey is the ed25519 verification key. Ignored for hs256.
	PublicKey []byte
	// Issuer and Audience are stamped into and enforced on every token
	// when non-empty.
	Issuer   string
	Audience string
	// Leeway is the clock tolerance applied during verification.
	Leeway time.Duration
	// MaxFutureIAT rejects tokens issued further in the future than
	// this. Default 2 minutes; negative disables the check.
	MaxFutureIAT time.Duration
}

// RegistrationConfig controls the signup flow.
type RegistrationConfig struct {
	// Enabled gates Signup entirely.
	Enabled bool
	// AutoLogin creates a session and returns tokens on signup. When
	// false, Signup returns a message-only response.
	AutoLogin bool
}

// PasswordConfig carries the argon2id hashing parameters. Rehashing
// stale hashes on login is opted into per provider via
// provider.WithUpgradeOnLogin.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// EventsConfig controls domain event dispatch.
type EventsConfig struct {
	// Async dispatches events on a background goroutine instead of
	// inline before the response.
	Async bool
	// BufferSize is the async queue depth, default 1024.
	BufferSize int
	// DropIfFull drops events instead of blocking when the async
	// buffer is full. Dropped events are counted.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ThrottleConfig controls fixed-window attempt budgets. Zero values
// disable the corresponding throttle.
type ThrottleConfig struct {
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxResetRequests int
	ResetCooldown    time.Duration
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Expiry:      7 * 24 * time.Hour,
			MaxPerUser:  10,
			Sliding:     true,
			RedisPrefix: "acs",
		},
		MFA: MFAConfig{
			Methods:          []string{"otp"},
			DefaultMethod:    "otp",
			OTPLength:        6,
			OTPExpiry:        15 * time.Minute,
			OTPMaxAttempts:   5,
			TrustedDeviceTTL: 30 * 24 * time.Hour,
			TOTPPeriod:       30,
			TOTPSkew:         1,
		},
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			ResetTTL:      15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
			MaxFutureIAT:  2 * time.Minute,
		},
		Registration: RegistrationConfig{
			Enabled:   true,
			AutoLogin: true,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Events: EventsConfig{
			BufferSize: 1024,
		},
		Throttle: ThrottleConfig{
			MaxLoginAttempts: 10,
			LoginCooldown:    15 * time.Minute,
			MaxResetRequests: 5,
			ResetCooldown:    time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.MFA.Methods = cloneStrings(cfg.MFA.Methods)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.Expiry <= 0 {
		return errors.New("session expiry must be positive")
	}
	if c.Session.MaxPerUser < 0 {
		return errors.New("session max per user must not be negative")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.ResetTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if c.MFA.OTPLength < 4 || c.MFA.OTPLength > 10 {
		return errors.New("otp length must be between 4 and 10")
	}
	if c.MFA.OTPExpiry <= 0 {
		return errors.New("otp expiry must be positive")
	}
	if c.MFA.TrustedDeviceTTL <= 0 {
		return errors.New("trusted device TTL must be positive")
	}
	for _, method := range c.MFA.Methods {
		if method != "otp" && method != "totp" {
			return errors.New("unsupported mfa method: " + method)
		}
	}
	if c.MFA.DefaultMethod != "" && len(c.MFA.Methods) > 0 && !containsString(c.MFA.Methods, c.MFA.DefaultMethod) {
		return errors.New("default mfa method not in enabled methods")
	}
	switch c.Token.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("unsupported token signing method")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token private key required")
	}
	if c.Password.SaltLength < 8 {
		return errors.New("password salt length must be at least 8")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("password key length must be at least 16")
	}
	if c.Password.Parallelism == 0 || c.Password.Time == 0 || c.Password.Memory == 0 {
		return errors.New("password hashing parameters must be positive")
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

package authcore

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValidWithKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("unit-test-signing-secret-0123456789")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config valid, got %v", err)
	}
	if cfg.Session.Expiry != 7*24*time.Hour || cfg.Session.MaxPerUser != 10 || !cfg.Session.Sliding {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.MFA.OTPLength != 6 || cfg.MFA.TrustedDeviceTTL != 30*24*time.Hour {
		t.Fatalf("unexpected MFA defaults: %+v", cfg.MFA)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	base := func() Config {
		cfg := defaultConfig()
		cfg.Token.SigningMethod = "hs256"
		cfg.Token.PrivateKey = []byte("unit-test-signing-secret-0123456789")
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero session expiry", func(c *Config) { c.Session.Expiry = 0 }},
		{"negative session cap", func(c *Config) { c.Session.MaxPerUser = -1 }},
		{"zero access TTL", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"refresh shorter than access", func(c *Config) {
			c.Token.AccessTTL = time.Hour
			c.Token.RefreshTTL = time.Minute
		}},
		{"otp length too short", func(c *Config) { c.MFA.OTPLength = 3 }},
		{"otp length too long", func(c *Config) { c.MFA.OTPLength = 11 }},
		{"zero otp expiry", func(c *Config) { c.MFA.OTPExpiry = 0 }},
		{"zero trust TTL", func(c *Config) { c.MFA.TrustedDeviceTTL = 0 }},
		{"unknown mfa method", func(c *Config) { c.MFA.Methods = []string{"sms"} }},
		{"default method not enabled", func(c *Config) {
			c.MFA.Methods = []string{"totp"}
			c.MFA.DefaultMethod = "otp"
		}},
		{"unknown signing method", func(c *Config) { c.Token.SigningMethod = "rs256" }},
		{"missing private key", func(c *Config) { c.Token.PrivateKey = nil }},
		{"short salt", func(c *Config) { c.Password.SaltLength = 4 }},
		{"short key", func(c *Config) { c.Password.KeyLength = 8 }},
		{"zero parallelism", func(c *Config) { c.Password.Parallelism = 0 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestCloneConfigIsolatesSlices(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("secret")
	cfg.MFA.Methods = []string{"otp"}

	cloned := cloneConfig(cfg)
	cloned.Token.PrivateKey[0] = 'X'
	cloned.MFA.Methods[0] = "totp"

	if cfg.Token.PrivateKey[0] == 'X' {
		t.Fatal("expected private key copy, not alias")
	}
	if cfg.MFA.Methods[0] != "otp" {
		t.Fatal("expected methods copy, not alias")
	}
}

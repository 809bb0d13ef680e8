package authcore

import (
	"context"
	"encoding/base32"
	"errors"
	"strings"
	"testing"
	"time"
)

func enrollmentCode(t *testing.T, secretBase32 string) string {
	t.Helper()

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("secret decode failed: %v", err)
	}
	code, err := hotpCode(secret, time.Now().Unix()/30, 6)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func loginAccessToken(t *testing.T, engine *Engine) string {
	t.Helper()

	resp, err := engine.Login(context.Background(), LoginRequest{
		Provider:    "password",
		Credentials: Credentials{"email": "alice@example.com", "password": "correct-password-123"},
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return resp.AccessToken
}

func TestTOTPEnrollmentFlow(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.Methods = []string{"otp", "totp"}

	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{"alice@example.com": "correct-password-123"})
	engine, _ := newTestEngine(t, cfg, store, up)

	seedPrincipal(t, engine, store, "password", "u1", "alice@example.com", "correct-password-123", false)

	ctx := context.Background()
	accessToken := loginAccessToken(t, engine)

	setup, err := engine.GenerateTOTPSetup(ctx, accessToken)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup failed: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("expected base32 secret")
	}
	if !strings.HasPrefix(setup.ProvisionURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI: %q", setup.ProvisionURI)
	}
	if !strings.Contains(setup.ProvisionURI, setup.Secret) {
		t.Fatal("expected secret embedded in provisioning URI")
	}

	// The secret is stored but stays unarmed until confirmed.
	store.mu.Lock()
	pending := store.principals["0:u1"]
	if len(pending.TOTPSecret) == 0 || pending.MFAEnabled {
		store.mu.Unlock()
		t.Fatalf("expected stored unarmed secret, got secret=%d enabled=%v", len(pending.TOTPSecret), pending.MFAEnabled)
	}
	store.mu.Unlock()

	if err := engine.ConfirmTOTPSetup(ctx, accessToken, "000000"); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("expected ErrMFACodeInvalid for wrong code, got %v", err)
	}

	if err := engine.ConfirmTOTPSetup(ctx, accessToken, enrollmentCode(t, setup.Secret)); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}

	store.mu.Lock()
	if !store.principals["0:u1"].MFAEnabled {
		store.mu.Unlock()
		t.Fatal("expected MFA enabled after confirmation")
	}
	store.mu.Unlock()

	// The next login enters the challenge and the enrolled authenticator
	// completes it.
	resp, err := engine.Login(ctx, LoginRequest{
		Provider:    "password",
		Credentials: Credentials{"email": "alice@example.com", "password": "correct-password-123"},
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !resp.IsRequiresMFA {
		t.Fatal("expected MFA challenge after enrollment")
	}

	verified, err := engine.VerifyMFA(ctx, resp.AccessToken, "totp", enrollmentCode(t, setup.Secret), false)
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if verified.AccessToken == "" || verified.RefreshToken == "" {
		t.Fatal("expected full token pair after totp verification")
	}
}

func TestTOTPConfirmWithoutSetup(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.Methods = []string{"otp", "totp"}

	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{"alice@example.com": "correct-password-123"})
	engine, _ := newTestEngine(t, cfg, store, up)

	seedPrincipal(t, engine, store, "password", "u1", "alice@example.com", "correct-password-123", false)
	accessToken := loginAccessToken(t, engine)

	err := engine.ConfirmTOTPSetup(context.Background(), accessToken, "123456")
	if !errors.Is(err, ErrTOTPNotEnrolled) {
		t.Fatalf("expected ErrTOTPNotEnrolled, got %v", err)
	}
}

func TestTOTPSetupRequiresEnabledMethod(t *testing.T) {
	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{"alice@example.com": "correct-password-123"})
	engine, _ := newTestEngine(t, testConfig(), store, up)

	seedPrincipal(t, engine, store, "password", "u1", "alice@example.com", "correct-password-123", false)
	accessToken := loginAccessToken(t, engine)

	// testConfig enables "otp" only.
	if _, err := engine.GenerateTOTPSetup(context.Background(), accessToken); !errors.Is(err, ErrMFAMethodDisabled) {
		t.Fatalf("expected ErrMFAMethodDisabled, got %v", err)
	}
	if err := engine.ConfirmTOTPSetup(context.Background(), accessToken, "123456"); !errors.Is(err, ErrMFAMethodDisabled) {
		t.Fatalf("expected ErrMFAMethodDisabled, got %v", err)
	}
}

func TestTOTPSetupRejectsPendingMFASession(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.Methods = []string{"otp", "totp"}

	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{"alice@example.com": "correct-password-123"})
	engine, _ := newTestEngine(t, cfg, store, up)

	seedPrincipal(t, engine, store, "password", "u1", "alice@example.com", "correct-password-123", true)

	resp, err := engine.Login(context.Background(), LoginRequest{
		Provider:    "password",
		Credentials: Credentials{"email": "alice@example.com", "password": "correct-password-123"},
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !resp.IsRequiresMFA {
		t.Fatal("expected pre-MFA session")
	}

	if _, err := engine.GenerateTOTPSetup(context.Background(), resp.AccessToken); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for pre-MFA session, got %v", err)
	}
}

func TestTOTPSetupRejectsGarbageToken(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.Methods = []string{"otp", "totp"}

	store := newMockPrincipalStore()
	engine, _ := newTestEngine(t, cfg, store, newPasswordMockProvider(nil))

	if _, err := engine.GenerateTOTPSetup(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestDisableTOTPClearsEnrollment(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.Methods = []string{"otp", "totp"}

	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{"alice@example.com": "correct-password-123"})
	engine, _ := newTestEngine(t, cfg, store, up)

	seedPrincipal(t, engine, store, "password", "u1", "alice@example.com", "correct-password-123", false)

	ctx := context.Background()
	accessToken := loginAccessToken(t, engine)

	setup, err := engine.GenerateTOTPSetup(ctx, accessToken)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup failed: %v", err)
	}
	if err := engine.ConfirmTOTPSetup(ctx, accessToken, enrollmentCode(t, setup.Secret)); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}

	// The session that enrolled is still MFA-verified and may disable.
	if err := engine.DisableTOTP(ctx, accessToken); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}

	store.mu.Lock()
	p := store.principals["0:u1"]
	if p.MFAEnabled || len(p.TOTPSecret) != 0 {
		store.mu.Unlock()
		t.Fatalf("expected enrollment cleared, got enabled=%v secret=%d", p.MFAEnabled, len(p.TOTPSecret))
	}
	store.mu.Unlock()

	// Logins no longer enter the challenge.
	resp, err := engine.Login(ctx, LoginRequest{
		Provider:    "password",
		Credentials: Credentials{"email": "alice@example.com", "password": "correct-password-123"},
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.IsRequiresMFA {
		t.Fatal("expected no challenge after disable")
	}

	if err := engine.DisableTOTP(ctx, accessToken); !errors.Is(err, ErrTOTPNotEnrolled) {
		t.Fatalf("expected ErrTOTPNotEnrolled on second disable, got %v", err)
	}
}

package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockPrincipalStore struct {
	mu         sync.Mutex
	principals map[string]*Principal
	links      map[string]*IdentityLink

	createErr error
	linkErr   error
	updateErr error

	getByIDCalls      int
	createCalls       int
	updateCalls       int
	updateHashCalls   int
	deleteCalls       int
	findIdentityCalls int
	linkCalls         int
	unlinkCalls       int
}

func newMockPrincipalStore() *mockPrincipalStore {
	return &mockPrincipalStore{
		principals: make(map[string]*Principal),
		links:      make(map[string]*IdentityLink),
	}
}

func principalKey(tenantID, id string) string {
	return tenantID + ":" + id
}

func linkKey(tenantID, provider, providerUserID string) string {
	return tenantID + ":" + provider + ":" + providerUserID
}

func (m *mockPrincipalStore) GetByID(_ context.Context, tenantID, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++

	p, ok := m.principals[principalKey(tenantID, id)]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPrincipalStore) Create(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++

	if m.createErr != nil {
		return m.createErr
	}
	cp := *p
	m.principals[principalKey(p.TenantID, p.ID)] = &cp
	return nil
}

func (m *mockPrincipalStore) Update(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.principals[principalKey(p.TenantID, p.ID)]; !ok {
		return ErrPrincipalNotFound
	}
	cp := *p
	m.principals[principalKey(p.TenantID, p.ID)] = &cp
	return nil
}

func (m *mockPrincipalStore) UpdatePasswordHash(_ context.Context, tenantID, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateHashCalls++

	p, ok := m.principals[principalKey(tenantID, id)]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordHash = hash
	return nil
}

func (m *mockPrincipalStore) Delete(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++

	delete(m.principals, principalKey(tenantID, id))
	return nil
}

func (m *mockPrincipalStore) FindIdentity(_ context.Context, tenantID, provider, providerUserID string) (*IdentityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findIdentityCalls++

	link, ok := m.links[linkKey(tenantID, provider, providerUserID)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *mockPrincipalStore) LinkIdentity(_ context.Context, link *IdentityLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkCalls++

	if m.linkErr != nil {
		return m.linkErr
	}
	cp := *link
	m.links[linkKey(link.TenantID, link.Provider, link.ProviderUserID)] = &cp
	return nil
}

func (m *mockPrincipalStore) UnlinkIdentity(_ context.Context, tenantID, provider, providerUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlinkCalls++

	delete(m.links, linkKey(tenantID, provider, providerUserID))
	return nil
}

func (m *mockPrincipalStore) setPasswordHash(tenantID, id, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.principals[principalKey(tenantID, id)]; ok {
		p.PasswordHash = hash
	}
}

func (m *mockPrincipalStore) has(tenantID, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.principals[principalKey(tenantID, id)]
	return ok
}

// mockProvider checks the credential named by linkField against a fixed
// password map.
type mockProvider struct {
	name          string
	linkField     string
	required      []string
	skipMFA       bool
	autoProvision bool
	passwords     map[string]string
	validateDelay time.Duration

	mu            sync.Mutex
	validateCalls int
}

func newPasswordMockProvider(passwords map[string]string) *mockProvider {
	return &mockProvider{
		name:      "password",
		linkField: "email",
		required:  []string{"email", "password"},
		passwords: passwords,
	}
}

func (p *mockProvider) Name() string             { return p.name }
func (p *mockProvider) RequiredFields() []string { return p.required }
func (p *mockProvider) SkipMFA() bool            { return p.skipMFA }
func (p *mockProvider) LinkField() string        { return p.linkField }
func (p *mockProvider) AutoProvision() bool      { return p.autoProvision }

func (p *mockProvider) Validate(_ context.Context, _ string, creds Credentials) (*ProviderIdentity, error) {
	p.mu.Lock()
	p.validateCalls++
	p.mu.Unlock()

	if p.validateDelay > 0 {
		time.Sleep(p.validateDelay)
	}

	identifier := creds[p.linkField]
	want, ok := p.passwords[identifier]
	if !ok || want != creds["password"] {
		return nil, ErrInvalidCredentials
	}
	return &ProviderIdentity{ProviderUserID: identifier}, nil
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("unit-test-signing-secret-0123456789")
	cfg.Metrics.Enabled = true
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestEngine(t *testing.T, cfg Config, store *mockPrincipalStore, providers ...Provider) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, client := newTestRedis(t)

	b := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalStore(store)
	for _, p := range providers {
		b = b.WithProvider(p)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

// seedPrincipal registers a principal with a hashed password and the
// identity link the given provider resolves through.
func seedPrincipal(t *testing.T, engine *Engine, store *mockPrincipalStore, providerName, id, email, pass string, mfaEnabled bool) {
	t.Helper()

	hash, err := engine.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	p := &Principal{
		ID:           id,
		TenantID:     "0",
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		MFAEnabled:   mfaEnabled,
		Roles:        []string{"member"},
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.LinkIdentity(context.Background(), &IdentityLink{
		Provider:       providerName,
		ProviderUserID: email,
		PrincipalID:    id,
		TenantID:       "0",
	}); err != nil {
		t.Fatalf("LinkIdentity failed: %v", err)
	}
}

func TestBuilderRequiresCoreDependencies(t *testing.T) {
	_, client := newTestRedis(t)
	cfg := testConfig()

	if _, err := New().WithConfig(cfg).WithPrincipalStore(newMockPrincipalStore()).WithProvider(newPasswordMockProvider(nil)).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}
	if _, err := New().WithConfig(cfg).WithRedis(client).WithProvider(newPasswordMockProvider(nil)).Build(); err == nil {
		t.Fatal("expected error without principal store")
	}
	if _, err := New().WithConfig(cfg).WithRedis(client).WithPrincipalStore(newMockPrincipalStore()).Build(); err == nil {
		t.Fatal("expected error without providers")
	}
}

func TestBuilderRejectsDuplicateProviderAndReuse(t *testing.T) {
	_, client := newTestRedis(t)

	b := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithPrincipalStore(newMockPrincipalStore()).
		WithProvider(newPasswordMockProvider(nil)).
		WithProvider(newPasswordMockProvider(nil))

	if _, err := b.Build(); err == nil {
		t.Fatal("expected duplicate provider error")
	}

	b2 := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithPrincipalStore(newMockPrincipalStore()).
		WithProvider(newPasswordMockProvider(nil))

	engine, err := b2.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b2.Build(); err == nil {
		t.Fatal("expected second Build on same builder to fail")
	}
}

func TestValidateAccessResolvesLiveSession(t *testing.T) {
	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{"alice@example.com": "correct-password-123"})
	engine, _ := newTestEngine(t, testConfig(), store, up)

	seedPrincipal(t, engine, store, "password", "u1", "alice@example.com", "correct-password-123", false)

	ctx := context.Background()
	resp, err := engine.Login(ctx, LoginRequest{
		Provider:    "password",
		Credentials: Credentials{"email": "alice@example.com", "password": "correct-password-123"},
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	result, err := engine.ValidateAccess(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if result.PrincipalID != "u1" || result.SessionID != resp.SessionID {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.MFAVerified {
		t.Fatal("expected MFAVerified for MFA-disabled principal")
	}
	if len(result.Roles) != 1 || result.Roles[0] != "member" {
		t.Fatalf("expected roles snapshot, got %v", result.Roles)
	}

	if err := engine.Logout(ctx, resp.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, resp.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestValidateAccessRejectsGarbageToken(t *testing.T) {
	store := newMockPrincipalStore()
	engine, _ := newTestEngine(t, testConfig(), store, newPasswordMockProvider(nil))

	if _, err := engine.ValidateAccess(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTransformErrorHookRewritesFlowErrors(t *testing.T) {
	store := newMockPrincipalStore()
	up := newPasswordMockProvider(map[string]string{})
	_, client := newTestRedis(t)

	replaced := errors.New("replaced")
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithPrincipalStore(store).
		WithProvider(up).
		WithHooks(Hooks{
			TransformError: func(_ context.Context, err error) error {
				if errors.Is(err, ErrInvalidCredentials) {
					return replaced
				}
				return err
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_, err = engine.Login(context.Background(), LoginRequest{
		Provider:    "password",
		Credentials: Credentials{"email": "nobody@example.com", "password": "wrong-password-1"},
	})
	if !errors.Is(err, replaced) {
		t.Fatalf("expected hook-replaced error, got %v", err)
	}
}

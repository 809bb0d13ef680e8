package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelforge/authcore/internal/events"
	"github.com/sentinelforge/authcore/internal/rate"
	"github.com/sentinelforge/authcore/otp"
	"github.com/sentinelforge/authcore/password"
	"github.com/sentinelforge/authcore/session"
	"github.com/sentinelforge/authcore/token"
	"github.com/sentinelforge/authcore/trust"
)

// Builder assembles an Engine. A Builder is single-use: Build may be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	providers    []Provider
	principals   PrincipalStore
	sessionStore session.Store
	eventSink    EventSink
	hooks        Hooks

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithProvider registers an identity provider. At least one is required;
// the first registered provider with a given name wins.
func (b *Builder) WithProvider(p Provider) *Builder {
	b.providers = append(b.providers, p)
	return b
}

func (b *Builder) WithPrincipalStore(store PrincipalStore) *Builder {
	b.principals = store
	return b
}

// WithSessionStore overrides the Redis-backed session store with a
// custom backend. The engine never inspects which backend is in use.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

func (b *Builder) WithHooks(hooks Hooks) *Builder {
	b.hooks = hooks
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.principals == nil {
		return nil, errors.New("principal store required")
	}
	if len(b.providers) == 0 {
		return nil, errors.New("at least one provider required")
	}

	providers := make(map[string]Provider, len(b.providers))
	for _, p := range b.providers {
		if p == nil || p.Name() == "" {
			return nil, errors.New("provider must have a name")
		}
		if _, exists := providers[p.Name()]; exists {
			return nil, errors.New("duplicate provider: " + p.Name())
		}
		providers[p.Name()] = p
	}

	store := b.sessionStore
	if store == nil {
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		ResetTTL:      cfg.Token.ResetTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		MaxFutureIAT:  cfg.Token.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		providers:  providers,
		principals: b.principals,
		hasher:     hasher,
		tokens:     issuer,
		hooks:      b.hooks,
	}

	engine.sessions = session.NewManager(store, session.Config{
		Expiry:     cfg.Session.Expiry,
		MaxPerUser: cfg.Session.MaxPerUser,
		Sliding:    cfg.Session.Sliding,
	})
	engine.otp = otp.NewStore(b.redis, otp.Config{
		Digits:      cfg.MFA.OTPLength,
		Expiry:      cfg.MFA.OTPExpiry,
		MaxAttempts: cfg.MFA.OTPMaxAttempts,
	})
	engine.trust = trust.NewRegistry(b.redis, trust.Config{
		TTL:             cfg.MFA.TrustedDeviceTTL,
		BindFingerprint: cfg.MFA.BindTrustFingerprint,
	})
	engine.throttle = rate.New(b.redis, rate.Config{
		EnableIPThrottle: cfg.Throttle.EnableIPThrottle,
		MaxLoginAttempts: cfg.Throttle.MaxLoginAttempts,
		LoginCooldown:    cfg.Throttle.LoginCooldown,
		MaxResetRequests: cfg.Throttle.MaxResetRequests,
		ResetCooldown:    cfg.Throttle.ResetCooldown,
	})
	engine.dispatcher = events.NewDispatcher(events.Config{
		Async:      cfg.Events.Async,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
	}, b.eventSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPVerifier(cfg.MFA)

	b.built = true

	return engine, nil
}

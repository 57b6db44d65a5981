package taskmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lewadaa/task-manager/cookie"
	"github.com/lewadaa/task-manager/internal/audit"
	"github.com/lewadaa/task-manager/internal/flows"
	"github.com/lewadaa/task-manager/internal/rate"
	"github.com/lewadaa/task-manager/jwt"
	"github.com/lewadaa/task-manager/kv"
	"github.com/lewadaa/task-manager/password"
	"github.com/lewadaa/task-manager/revocation"
	"github.com/lewadaa/task-manager/session"
	"github.com/redis/go-redis/v9"
)

const dummyPassword = "task-manager-timing-equalizer"

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  kv.Store

	directory PrincipalDirectory
	verifier  PasswordVerifier
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis stores sessions and revocations in Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore uses store for sessions, revocations and login counters. It takes
// precedence over WithRedis.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithDirectory sets the principal directory. Required.
func (b *Builder) WithDirectory(dir PrincipalDirectory) *Builder {
	b.directory = dir
	return b
}

// WithPasswordVerifier overrides the verifier built from Config.Password.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Nil discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for credential issuance and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
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

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("principal directory required")
	}

	backend := b.store
	if backend == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or kv store required")
		}
		backend = kv.NewRedis(b.redis)
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	codec, err := jwt.NewCodec(jwt.Config{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
		Now:        clock,
	})
	if err != nil {
		return nil, err
	}
	if err := codec.Warm(); err != nil {
		return nil, err
	}

	cookies, err := cookie.NewManager(cookie.Config{
		Name:     cfg.Cookie.Name,
		Path:     cfg.Cookie.Path,
		Domain:   cfg.Cookie.Domain,
		MaxAge:   cfg.Cookie.MaxAge,
		Secure:   cfg.Cookie.Secure,
		HttpOnly: cfg.Cookie.HttpOnly,
		SameSite: cfg.Cookie.SameSite,
	})
	if err != nil {
		return nil, err
	}

	verifier := b.verifier
	if verifier == nil {
		v, err := buildVerifier(cfg.Password)
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	// An unknown principal is checked against this hash so the response time
	// does not reveal whether the username exists.
	var dummyHash string
	if h, ok := verifier.(interface {
		Hash(string) (string, error)
	}); ok {
		dummyHash, err = h.Hash(dummyPassword)
		if err != nil {
			return nil, fmt.Errorf("dummy hash: %w", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.Security.EnableLoginThrottle {
		counter, ok := backend.(rate.Backend)
		if !ok {
			return nil, errors.New("login throttle requires a store that supports counters")
		}
		limiter = rate.New(counter, rate.Config{
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LoginCooldown:    cfg.Security.LoginCooldown,
		})
	}

	e := &Engine{
		config:      cfg,
		codec:       codec,
		sessions:    session.NewStore(backend, cfg.Session.SessionPrefix),
		revocations: revocation.NewStore(backend, cfg.Session.RevocationPrefix),
		cookies:     cookies,
		directory:   b.directory,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		clock:       clock,
	}
	if p, ok := backend.(pinger); ok {
		e.backend = p
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(audit.Event) {
			e.metricInc(MetricAuditDropped)
		},
		Logger: logger.With("component", "audit"),
	}, b.auditSink)

	e.flows = flows.Deps{
		Login: flows.LoginDeps{
			Codec:       codec,
			Sessions:    e.sessions,
			Lookup:      e.lookupPrincipal,
			Verify:      verifier.Verify,
			DummyHash:   dummyHash,
			RateLimited: rate.ErrRateLimited,
			Warn: func(msg string, args ...any) {
				logger.Warn(msg, args...)
			},
		},
		Logout: flows.LogoutDeps{
			Codec:              codec,
			Sessions:           e.sessions,
			Revocations:        e.revocations,
			FixedRevocationTTL: cfg.Session.RevocationTTL,
		},
		Refresh: flows.RefreshDeps{
			Codec:    codec,
			Sessions: e.sessions,
			Lookup:   e.lookupPrincipal,
			Warn: func(msg string, args ...any) {
				logger.Warn(msg, args...)
			},
		},
		Authenticate: flows.AuthenticateDeps{
			Codec:       codec,
			Sessions:    e.sessions,
			Revocations: e.revocations,
			Lookup:      e.lookupPrincipal,
		},
	}
	if limiter != nil {
		e.flows.Login.Limiter = limiter
	}

	b.built = true
	return e, nil
}

func buildVerifier(cfg PasswordConfig) (*password.Verifier, error) {
	a, err := password.NewArgon2(password.Argon2Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	return password.NewVerifier(cfg.Scheme, a, bc)
}

package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	repo       IdentityRepository
	dispatcher notify.Dispatcher
	auditSink  AuditSink
	logger     *zap.Logger
	now        func() time.Time
	guard      *permission.Guard

	attempts AttemptStore
	codes    CodeStore

	built bool
}

// New returns a Builder holding the production defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs both the attempt counters and the code store with
// client, unless either was set explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithRepository(repo IdentityRepository) *Builder {
	b.repo = repo
	return b
}

func (b *Builder) WithDispatcher(d notify.Dispatcher) *Builder {
	b.dispatcher = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every time-dependent decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRoleGuard replaces the default CUSTOMER < EMPLOYEE < CHEF guard.
func (b *Builder) WithRoleGuard(g *permission.Guard) *Builder {
	b.guard = g
	return b
}

func (b *Builder) WithAttemptStore(s AttemptStore) *Builder {
	b.attempts = s
	return b
}

func (b *Builder) WithCodeStore(s CodeStore) *Builder {
	b.codes = s
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

// Build validates the configuration and wires every component. In
// production with Security.RequireSharedStores, process-local stores are
// rejected because lockout would then be per instance.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.repo == nil {
		return nil, errors.New("identity repository required")
	}
	if b.dispatcher == nil {
		return nil, errors.New("notification dispatcher required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- COUNTER AND CODE STORES --------
	attempts := b.attempts
	if attempts == nil {
		if b.redis != nil {
			attempts = NewRedisAttemptStore(b.redis, cfg.Lockout.RedisPrefix)
		} else {
			attempts = NewMemoryAttemptStore()
		}
	}
	codes := b.codes
	if codes == nil {
		if b.redis != nil {
			codes = NewRedisCodeStore(b.redis, cfg.OneTimeCode.RedisPrefix)
		} else {
			codes = NewMemoryCodeStore()
		}
	}
	if cfg.Environment == EnvProduction && cfg.Security.RequireSharedStores {
		if !isSharedAttemptStore(attempts) || !isSharedCodeStore(codes) {
			return nil, errors.New("production: shared attempt and code stores required")
		}
	}

	// -------- SIGNING SECRET --------
	secret := cloneBytes(cfg.JWT.Secret)
	if len(secret) == 0 {
		generated, err := internal.NewSecret(32)
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Warn("no signing secret configured, generated an ephemeral one; tokens will not survive a restart")
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:    secret,
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Leeway:    cfg.JWT.Leeway,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}
	cfg.JWT.Secret = nil

	// -------- PASSWORDS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	dummy, err := ph.Hash("authcore-dummy-password")
	if err != nil {
		return nil, err
	}

	guard := b.guard
	if guard == nil {
		guard = permission.DefaultGuard()
	}

	engine := &Engine{
		config:     cfg,
		repo:       b.repo,
		dispatcher: b.dispatcher,
		passwords:  ph,
		dummyHash:  dummy,
		tokens:     tokens,
		roles:      guard,
		loginGuard: limiters.NewGuard(attempts, limiters.Policy{
			Threshold: cfg.Lockout.LoginThreshold,
			Duration:  cfg.Lockout.LoginDuration,
		}, "login", now),
		codes:   newCodeManager(codes, attempts, cfg.OneTimeCode, cfg.Lockout, now),
		redis:   b.redis,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("authcore"),
		clock:   now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(total uint64) {
			// Logged at powers of two only.
			if total&(total-1) == 0 {
				engine.logger.Warn("audit buffer full, events dropped", zap.Uint64("dropped", total))
			}
		},
	}, b.auditSink)

	b.built = true
	return engine, nil
}

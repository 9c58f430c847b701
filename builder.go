package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Builder assembles an [Engine]. A Builder produces at most one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store    CredentialStore
	sessions SessionStore
	attempts AttemptTracker
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	auditSink AuditSink
	hooks     hookRegistry

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		hooks:  hookRegistry{},
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRedis sets the client used for tokens, throttles, the default attempt tracker and
// the default session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore replaces the built-in Redis session store.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

// WithAttemptTracker replaces the built-in Redis attempt tracker, for example with
// sqlstore's.
func (b *Builder) WithAttemptTracker(tracker AttemptTracker) *Builder {
	b.attempts = tracker
	return b
}

// WithNotifier sets the message sender used for recovery, new password and activation
// messages.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the time source of token expiry and attempt windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuditSink sets the audit destination. Events flow only when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHook registers fn to run at point of op. Hooks of one point run in registration
// order.
func (b *Builder) WithHook(op Operation, point HookPoint, fn Hook) *Builder {
	b.hooks.add(op, point, fn)
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Recovery.UseNotifier && b.notifier == nil {
		cfg.Recovery.UseNotifier = false
	}

	hasher, err := password.New(cfg.Hash.passwordConfig())
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SESSIONS --------
	sessions := b.sessions
	if sessions == nil {
		store, err := session.NewStore(b.redis, session.Config{
			Prefix:     cfg.Session.RedisPrefix,
			TTL:        cfg.Session.TTL,
			SigningKey: []byte(cfg.Session.SigningKey),
			Issuer:     cfg.Session.Issuer,
		})
		if err != nil {
			return nil, err
		}
		sessions = redisSessions{store: store}
	}

	// -------- ATTEMPTS --------
	attempts := b.attempts
	if attempts == nil {
		attempts = limiters.NewAttemptTracker(b.redis, cfg.Lockout.policy()).WithClock(now)
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		sessions: sessions,
		attempts: attempts,
		notifier: b.notifier,
		hasher:   hasher,
		logger:   logger,
		now:      now,
		hooks:    b.hooks.freeze(),

		recovery: tokens.New(stores.NewTokenStore(b.redis, "arc"), tokens.Single).WithClock(now),
		remember: tokens.New(stores.NewTokenStore(b.redis, "arm"), tokens.Multi).WithClock(now),
		recoveryLimiter: limiters.NewRecoveryLimiter(b.redis, limiters.RecoveryConfig{
			EnableIdentifierThrottle: cfg.Recovery.MaxRequests > 0,
			EnableIPThrottle:         cfg.Recovery.MaxRequests > 0,
			Window:                   cfg.Recovery.RequestWindow,
			MaxRequests:              cfg.Recovery.MaxRequests,
		}),
		loginThrottle: rate.NewLocal(cfg.Throttle.LoginPerSecond, cfg.Throttle.LoginBurst),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}

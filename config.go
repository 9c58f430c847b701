package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/password"
)

// Config holds every engine setting. Build validates it; afterwards it is read-only.
type Config struct {
	Hash       HashConfig       `yaml:"hash" toml:"hash"`
	Identity   IdentityConfig   `yaml:"identity" toml:"identity"`
	Lockout    LockoutConfig    `yaml:"lockout" toml:"lockout"`
	Recovery   RecoveryConfig   `yaml:"recovery" toml:"recovery"`
	Remember   RememberConfig   `yaml:"remember" toml:"remember"`
	Activation ActivationConfig `yaml:"activation" toml:"activation"`
	Session    SessionConfig    `yaml:"session" toml:"session"`
	Throttle   ThrottleConfig   `yaml:"throttle" toml:"throttle"`
	Templates  TemplatesConfig  `yaml:"templates" toml:"templates"`
	Audit      AuditConfig      `yaml:"audit" toml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

/*
====================================
HASH CONFIG
====================================
*/

// HashConfig selects the password digest scheme for new digests.
// Cost is the bcrypt work factor or the argon2id time parameter.
type HashConfig struct {
	Scheme      string `yaml:"scheme" toml:"scheme"`
	DefaultCost int    `yaml:"default_cost" toml:"default_cost"`
	MinCost     int    `yaml:"min_cost" toml:"min_cost"`
	MaxCost     int    `yaml:"max_cost" toml:"max_cost"`
	RandomCost  bool   `yaml:"random_cost" toml:"random_cost"`

	// StoreSalt keeps the legacy scheme's salt in its own column instead of prefixing it
	// to the digest.
	StoreSalt  bool `yaml:"store_salt" toml:"store_salt"`
	SaltLength int  `yaml:"salt_length" toml:"salt_length"`

	// UpgradeOnLogin rehashes digests produced by another scheme or a cost below MinCost
	// after a successful login.
	UpgradeOnLogin bool `yaml:"upgrade_on_login" toml:"upgrade_on_login"`

	Argon2 Argon2Config `yaml:"argon2" toml:"argon2"`
}

// Argon2Config tunes the argon2id scheme.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory_kb" toml:"memory_kb"`
	Parallelism uint8  `yaml:"parallelism" toml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length" toml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length" toml:"key_length"`
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig controls which column logs in and the password length policy.
type IdentityConfig struct {
	// Field is "email" or "username".
	Field             string `yaml:"field" toml:"field"`
	MinPasswordLength int    `yaml:"min_password_length" toml:"min_password_length"`
	// MaxPasswordLength of 0 disables the upper bound.
	MaxPasswordLength int    `yaml:"max_password_length" toml:"max_password_length"`
	DefaultGroup      string `yaml:"default_group" toml:"default_group"`
	AdminGroup        string `yaml:"admin_group" toml:"admin_group"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig is the failed-login policy. MaxAttempts of 0 records failures but never
// locks.
type LockoutConfig struct {
	TrackAttempts bool          `yaml:"track_attempts" toml:"track_attempts"`
	MaxAttempts   int           `yaml:"max_attempts" toml:"max_attempts"`
	Window        time.Duration `yaml:"window" toml:"window"`
	// TrackByIP scopes attempt records to identity and client IP.
	TrackByIP bool `yaml:"track_by_ip" toml:"track_by_ip"`
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig controls forgotten-password codes.
type RecoveryConfig struct {
	// Expiration of 0 keeps codes valid until redeemed or replaced.
	Expiration  time.Duration `yaml:"expiration" toml:"expiration"`
	UseNotifier bool          `yaml:"use_notifier" toml:"use_notifier"`
	// ConcealUnknown answers unknown identities with a success-shaped empty result.
	ConcealUnknown bool          `yaml:"conceal_unknown" toml:"conceal_unknown"`
	MaxRequests    int           `yaml:"max_requests" toml:"max_requests"`
	RequestWindow  time.Duration `yaml:"request_window" toml:"request_window"`
}

/*
====================================
REMEMBER CONFIG
====================================
*/

// RememberConfig controls remember-me tokens.
type RememberConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	TTL     time.Duration `yaml:"ttl" toml:"ttl"`
	// ExtendOnLogin rotates the token on every remembered login.
	ExtendOnLogin bool `yaml:"extend_on_login" toml:"extend_on_login"`
}

/*
====================================
ACTIVATION CONFIG
====================================
*/

// ActivationConfig decides whether new accounts start inactive.
type ActivationConfig struct {
	Email  bool `yaml:"email" toml:"email"`
	Manual bool `yaml:"manual" toml:"manual"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the built-in Redis session store. It is ignored when a custom
// SessionStore is supplied.
type SessionConfig struct {
	RedisPrefix string        `yaml:"redis_prefix" toml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl" toml:"ttl"`
	SigningKey  string        `yaml:"signing_key" toml:"signing_key"`
	Issuer      string        `yaml:"issuer" toml:"issuer"`
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig bounds login attempts per client IP within this process. A zero rate
// disables it.
type ThrottleConfig struct {
	LoginPerSecond float64 `yaml:"login_per_second" toml:"login_per_second"`
	LoginBurst     int     `yaml:"login_burst" toml:"login_burst"`
}

/*
====================================
TEMPLATES CONFIG
====================================
*/

// TemplatesConfig names the Notifier templates.
type TemplatesConfig struct {
	Activate       string `yaml:"activate" toml:"activate"`
	ForgotPassword string `yaml:"forgot_password" toml:"forgot_password"`
	NewPassword    string `yaml:"new_password" toml:"new_password"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	BufferSize int  `yaml:"buffer_size" toml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full" toml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" toml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" toml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the settings used when no file or override changes them.
func DefaultConfig() Config {
	hash := password.DefaultConfig()
	return Config{
		Hash: HashConfig{
			Scheme:         string(hash.Scheme),
			DefaultCost:    hash.DefaultCost,
			MinCost:        hash.MinCost,
			MaxCost:        hash.MaxCost,
			SaltLength:     hash.SaltLength,
			UpgradeOnLogin: true,
			Argon2: Argon2Config{
				Memory:      hash.Argon2.Memory,
				Parallelism: hash.Argon2.Parallelism,
				SaltLength:  hash.Argon2.SaltLength,
				KeyLength:   hash.Argon2.KeyLength,
			},
		},
		Identity: IdentityConfig{
			Field:             "email",
			MinPasswordLength: 8,
			MaxPasswordLength: 20,
			DefaultGroup:      "members",
			AdminGroup:        "admin",
		},
		Lockout: LockoutConfig{
			MaxAttempts: 3,
			Window:      600 * time.Second,
		},
		Recovery: RecoveryConfig{
			UseNotifier:   true,
			MaxRequests:   5,
			RequestWindow: 15 * time.Minute,
		},
		Remember: RememberConfig{
			Enabled: true,
			TTL:     86500 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "as",
			TTL:         24 * time.Hour,
			Issuer:      "authcore",
		},
		Templates: TemplatesConfig{
			Activate:       "activate",
			ForgotPassword: "forgot_password",
			NewPassword:    "new_password",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c HashConfig) passwordConfig() password.Config {
	return password.Config{
		Scheme:      password.Scheme(c.Scheme),
		DefaultCost: c.DefaultCost,
		MinCost:     c.MinCost,
		MaxCost:     c.MaxCost,
		RandomCost:  c.RandomCost,
		StoreSalt:   c.StoreSalt,
		SaltLength:  c.SaltLength,
		Argon2: password.Argon2Config{
			Memory:      c.Argon2.Memory,
			Parallelism: c.Argon2.Parallelism,
			SaltLength:  c.Argon2.SaltLength,
			KeyLength:   c.Argon2.KeyLength,
		},
	}
}

func (c LockoutConfig) policy() limiters.Policy {
	return limiters.Policy{
		Track:       c.TrackAttempts,
		MaxAttempts: c.MaxAttempts,
		Window:      c.Window,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	// Hash
	switch password.Scheme(c.Hash.Scheme) {
	case password.SchemeBcrypt, password.SchemeLegacy, password.SchemeArgon2id:
	default:
		return fmt.Errorf("Hash Scheme %q is not supported", c.Hash.Scheme)
	}
	if c.Hash.SaltLength < 1 {
		return errors.New("Hash SaltLength must be >= 1")
	}

	// Identity
	if c.Identity.Field != "email" && c.Identity.Field != "username" {
		return errors.New("Identity Field must be 'email' or 'username'")
	}
	if c.Identity.MinPasswordLength < 1 {
		return errors.New("Identity MinPasswordLength must be >= 1")
	}
	if c.Identity.MaxPasswordLength != 0 && c.Identity.MaxPasswordLength < c.Identity.MinPasswordLength {
		return errors.New("Identity MaxPasswordLength must be 0 or >= MinPasswordLength")
	}

	// Lockout
	if c.Lockout.MaxAttempts < 0 {
		return errors.New("Lockout MaxAttempts must be >= 0")
	}
	if c.Lockout.TrackAttempts && c.Lockout.MaxAttempts > 0 && c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0 when attempts are limited")
	}

	// Recovery
	if c.Recovery.Expiration < 0 {
		return errors.New("Recovery Expiration must be >= 0")
	}
	if c.Recovery.MaxRequests < 0 {
		return errors.New("Recovery MaxRequests must be >= 0")
	}
	if c.Recovery.MaxRequests > 0 && c.Recovery.RequestWindow <= 0 {
		return errors.New("Recovery RequestWindow must be > 0 when MaxRequests is set")
	}
	if c.Recovery.UseNotifier && (c.Templates.ForgotPassword == "" || c.Templates.NewPassword == "") {
		return errors.New("Templates ForgotPassword and NewPassword are required when Recovery UseNotifier is true")
	}

	// Remember
	if c.Remember.TTL < 0 {
		return errors.New("Remember TTL must be >= 0")
	}

	// Activation
	if c.Activation.Email && c.Templates.Activate == "" {
		return errors.New("Templates Activate is required when Activation Email is true")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// Throttle
	if c.Throttle.LoginPerSecond < 0 {
		return errors.New("Throttle LoginPerSecond must be >= 0")
	}
	if c.Throttle.LoginBurst < 0 {
		return errors.New("Throttle LoginBurst must be >= 0")
	}

	// Audit
	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}

	return nil
}

package authcore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadConfig builds a Config in layers:
//  1. DefaultConfig
//  2. the file at path, YAML (.yaml, .yml) or TOML (.toml); skipped when path is empty
//  3. AUTHCORE_* environment variables
//  4. Validate
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadConfigFile decodes path over cfg. Keys missing from the file keep their values.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

type envSetter func(cfg *Config, v string) error

func envString(set func(*Config, string)) envSetter {
	return func(cfg *Config, v string) error {
		set(cfg, v)
		return nil
	}
}

func envInt(set func(*Config, int)) envSetter {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(cfg, n)
		return nil
	}
}

func envBool(set func(*Config, bool)) envSetter {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(cfg, b)
		return nil
	}
}

func envDuration(set func(*Config, time.Duration)) envSetter {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		set(cfg, d)
		return nil
	}
}

var envOverrides = []struct {
	name string
	set  envSetter
}{
	{"AUTHCORE_HASH_SCHEME", envString(func(c *Config, v string) { c.Hash.Scheme = v })},
	{"AUTHCORE_HASH_DEFAULT_COST", envInt(func(c *Config, v int) { c.Hash.DefaultCost = v })},
	{"AUTHCORE_HASH_MIN_COST", envInt(func(c *Config, v int) { c.Hash.MinCost = v })},
	{"AUTHCORE_HASH_MAX_COST", envInt(func(c *Config, v int) { c.Hash.MaxCost = v })},
	{"AUTHCORE_IDENTITY_FIELD", envString(func(c *Config, v string) { c.Identity.Field = v })},
	{"AUTHCORE_LOCKOUT_TRACK", envBool(func(c *Config, v bool) { c.Lockout.TrackAttempts = v })},
	{"AUTHCORE_LOCKOUT_MAX_ATTEMPTS", envInt(func(c *Config, v int) { c.Lockout.MaxAttempts = v })},
	{"AUTHCORE_LOCKOUT_WINDOW", envDuration(func(c *Config, v time.Duration) { c.Lockout.Window = v })},
	{"AUTHCORE_RECOVERY_EXPIRATION", envDuration(func(c *Config, v time.Duration) { c.Recovery.Expiration = v })},
	{"AUTHCORE_RECOVERY_CONCEAL_UNKNOWN", envBool(func(c *Config, v bool) { c.Recovery.ConcealUnknown = v })},
	{"AUTHCORE_REMEMBER_TTL", envDuration(func(c *Config, v time.Duration) { c.Remember.TTL = v })},
	{"AUTHCORE_SESSION_PREFIX", envString(func(c *Config, v string) { c.Session.RedisPrefix = v })},
	{"AUTHCORE_SESSION_TTL", envDuration(func(c *Config, v time.Duration) { c.Session.TTL = v })},
	{"AUTHCORE_SESSION_SIGNING_KEY", envString(func(c *Config, v string) { c.Session.SigningKey = v })},
}

// applyEnvOverrides sets every AUTHCORE_* variable that lookup reports.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	for _, o := range envOverrides {
		v, ok := lookup(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return nil
}

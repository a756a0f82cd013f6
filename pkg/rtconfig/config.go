// Package rtconfig loads the runtime configuration recognized by the whole
// system (§6.4 of the specification): data root, shard count, cache
// thresholds, effect worker pool size, subscriber deadline and the default
// retry policy. Adapted from fluxor's pkg/config loader/env-override
// machinery, narrowed to this runtime's fixed key set.
package rtconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackoffKind enumerates the retry backoff strategies (§4.3.2).
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryDefault is the fallback retry policy applied when an effect's retry
// node omits a field.
type RetryDefault struct {
	Attempts int         `yaml:"attempts" json:"attempts"`
	Backoff  BackoffKind `yaml:"backoff" json:"backoff"`
	BaseMs   int         `yaml:"base_ms" json:"base_ms"`
	Jitter   bool        `yaml:"jitter" json:"jitter"`
}

// Config is the recognized key set from §6.4.
type Config struct {
	DataRoot                  string        `yaml:"data_root" json:"data_root"`
	ShardCount                int           `yaml:"shard_count" json:"shard_count"`
	CacheMemoryThresholdBytes int64         `yaml:"cache_memory_threshold_bytes" json:"cache_memory_threshold_bytes"`
	EntryTTLSeconds           int           `yaml:"entry_ttl_seconds" json:"entry_ttl_seconds"`
	CleanupIntervalMs         int           `yaml:"cleanup_interval_ms" json:"cleanup_interval_ms"`
	EffectWorkerPool          int           `yaml:"effect_worker_pool" json:"effect_worker_pool"`
	SubscriberDeadlineMs      int           `yaml:"subscriber_deadline_ms" json:"subscriber_deadline_ms"`
	RetryDefault              RetryDefault  `yaml:"retry_default" json:"retry_default"`
}

// Default returns the configuration with every §6.4 default applied.
func Default() Config {
	return Config{
		DataRoot:                  "./data",
		ShardCount:                10,
		CacheMemoryThresholdBytes: 268_435_456,
		EntryTTLSeconds:           3600,
		CleanupIntervalMs:         30_000,
		EffectWorkerPool:          64,
		SubscriberDeadlineMs:      1000,
		RetryDefault: RetryDefault{
			Attempts: 3,
			Backoff:  BackoffExponential,
			BaseMs:   100,
			Jitter:   true,
		},
	}
}

// EntryTTL returns EntryTTLSeconds as a time.Duration.
func (c Config) EntryTTL() time.Duration {
	return time.Duration(c.EntryTTLSeconds) * time.Second
}

// CleanupInterval returns CleanupIntervalMs as a time.Duration.
func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

// SubscriberDeadline returns SubscriberDeadlineMs as a time.Duration.
func (c Config) SubscriberDeadline() time.Duration {
	return time.Duration(c.SubscriberDeadlineMs) * time.Millisecond
}

// Load reads a YAML configuration file over the defaults, then applies
// FSMRT_-prefixed environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 -- path is operator-supplied at startup, not untrusted input.
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors fluxor's reflection-driven override mechanism,
// specialized to this runtime's flat key set (no nested structs beyond
// RetryDefault, handled explicitly).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FSMRT_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v, ok := envInt("FSMRT_SHARD_COUNT"); ok {
		cfg.ShardCount = v
	}
	if v, ok := envInt64("FSMRT_CACHE_MEMORY_THRESHOLD_BYTES"); ok {
		cfg.CacheMemoryThresholdBytes = v
	}
	if v, ok := envInt("FSMRT_ENTRY_TTL_SECONDS"); ok {
		cfg.EntryTTLSeconds = v
	}
	if v, ok := envInt("FSMRT_CLEANUP_INTERVAL_MS"); ok {
		cfg.CleanupIntervalMs = v
	}
	if v, ok := envInt("FSMRT_EFFECT_WORKER_POOL"); ok {
		cfg.EffectWorkerPool = v
	}
	if v, ok := envInt("FSMRT_SUBSCRIBER_DEADLINE_MS"); ok {
		cfg.SubscriberDeadlineMs = v
	}
	if v := os.Getenv("FSMRT_RETRY_DEFAULT_BACKOFF"); v != "" {
		cfg.RetryDefault.Backoff = BackoffKind(strings.ToLower(v))
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.ShardCount <= 0 {
		return fmt.Errorf("shard_count must be positive, got %d", c.ShardCount)
	}
	if c.EffectWorkerPool <= 0 {
		return fmt.Errorf("effect_worker_pool must be positive, got %d", c.EffectWorkerPool)
	}
	if c.RetryDefault.Attempts < 1 {
		return fmt.Errorf("retry_default.attempts must be >= 1, got %d", c.RetryDefault.Attempts)
	}
	switch c.RetryDefault.Backoff {
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("retry_default.backoff must be constant|linear|exponential, got %q", c.RetryDefault.Backoff)
	}
	return nil
}

// Package nessconfig loads the adapter's configuration surface
// (spec.md §6) from defaults, an optional nessie.toml file, and
// NESSIE_*-prefixed environment variables, the way the teacher's
// internal/config package layers viper over a TOML/YAML file and
// environment overrides.
package nessconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config keys, exported so callers (CLI flags, tests) can reference them
// without retyping string literals.
const (
	KeyRepositoryID                = "repository_id"
	KeyDefaultKeyListDistance      = "default_key_list_distance"
	KeyCommitRetries               = "commit_retries"
	KeyParentPerCommit             = "parent_per_commit"
	KeyGlobalParentsRing           = "global_parents_ring"
	KeyRefLogParentsRing           = "ref_log_parents_ring"
	KeyBloomFilterFPP              = "bloom_filter_fpp"
	KeyBloomFilterExpectedEntries  = "bloom_filter_expected_entries"
	KeyStoreDSN                    = "store_dsn"
	KeyGCShards                    = "gc_shards"
	KeyCASRetryBackoff             = "cas_retry_backoff"
)

// Config is the resolved configuration surface spec.md §6 enumerates,
// plus the domain-stack additions (store DSN, GC shard count) SPEC_FULL.md
// §3 layers on top.
type Config struct {
	RepositoryID               string
	DefaultKeyListDistance     int
	CommitRetries              int
	ParentPerCommit            int
	GlobalParentsRing          int
	RefLogParentsRing          int
	BloomFilterFPP             float64
	BloomFilterExpectedEntries *int
	StoreDSN                   string
	GCShards                   int
	CASRetryBackoff            time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyRepositoryID, "default")
	v.SetDefault(KeyDefaultKeyListDistance, 20)
	v.SetDefault(KeyCommitRetries, 5)
	v.SetDefault(KeyParentPerCommit, 20)
	v.SetDefault(KeyGlobalParentsRing, 20)
	v.SetDefault(KeyRefLogParentsRing, 20)
	v.SetDefault(KeyBloomFilterFPP, 0.01)
	v.SetDefault(KeyStoreDSN, "")
	v.SetDefault(KeyGCShards, 0) // 0 means "one shard per reference"
	v.SetDefault(KeyCASRetryBackoff, "10ms")

	v.SetEnvPrefix("NESSIE")
	v.AutomaticEnv()
	v.SetConfigType("toml")
	return v
}

// Load resolves configuration from defaults, then (if non-empty) a
// nessie.toml file at path, then NESSIE_* environment variables, which
// take the highest precedence — matching the teacher's config layering.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("nessconfig: reading %s: %w", path, err)
		}
	}

	cfg := &Config{
		RepositoryID:           v.GetString(KeyRepositoryID),
		DefaultKeyListDistance: v.GetInt(KeyDefaultKeyListDistance),
		CommitRetries:          v.GetInt(KeyCommitRetries),
		ParentPerCommit:        v.GetInt(KeyParentPerCommit),
		GlobalParentsRing:      v.GetInt(KeyGlobalParentsRing),
		RefLogParentsRing:      v.GetInt(KeyRefLogParentsRing),
		BloomFilterFPP:         v.GetFloat64(KeyBloomFilterFPP),
		StoreDSN:               v.GetString(KeyStoreDSN),
		GCShards:               v.GetInt(KeyGCShards),
		CASRetryBackoff:        v.GetDuration(KeyCASRetryBackoff),
	}
	if v.IsSet(KeyBloomFilterExpectedEntries) {
		n := v.GetInt(KeyBloomFilterExpectedEntries)
		cfg.BloomFilterExpectedEntries = &n
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration combinations that would break the
// invariants the commit engine and GC rely on.
func (c *Config) Validate() error {
	if c.DefaultKeyListDistance < 1 {
		return fmt.Errorf("nessconfig: default_key_list_distance must be >= 1, got %d", c.DefaultKeyListDistance)
	}
	if c.CommitRetries < 1 {
		return fmt.Errorf("nessconfig: commit_retries must be >= 1, got %d", c.CommitRetries)
	}
	if c.GlobalParentsRing < 1 || c.RefLogParentsRing < 1 {
		return fmt.Errorf("nessconfig: ring buffer sizes must be >= 1")
	}
	if c.BloomFilterFPP <= 0 || c.BloomFilterFPP >= 1 {
		return fmt.Errorf("nessconfig: bloom_filter_fpp must be in (0, 1), got %f", c.BloomFilterFPP)
	}
	return nil
}

// Default returns a Config populated from built-in defaults plus any
// NESSIE_* environment overrides (no config file), for use by tests and
// the in-memory store.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults are validated at package init time via tests; a
		// failure here means the built-in defaults themselves regressed.
		panic(err)
	}
	return cfg
}

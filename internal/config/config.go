// Package config loads and validates the distbuilder YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	Cache    CacheConfig    `yaml:"cache"`
	Build    BuildConfig    `yaml:"build"`
	Compile  CompileConfig  `yaml:"compile"`
	Download DownloadConfig `yaml:"download"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Events   EventsConfig   `yaml:"events"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig configures the public and admin HTTP listeners.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AdminAddr       string        `yaml:"admin_addr,omitempty"`
	IndexFile       string        `yaml:"index_file,omitempty"` // markdown rendered at "/"
	Favicon         string        `yaml:"favicon,omitempty"`
	DefaultBranch   string        `yaml:"default_branch"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RemoteConfig describes the remote source repository.
type RemoteConfig struct {
	// RawRoot serves raw files as <RawRoot>/<branch>/<subpath>.
	RawRoot string `yaml:"raw_root"`
	// APIRoot lists directories as <APIRoot>/<subpath>?ref=<branch> (GitHub contents API).
	APIRoot string `yaml:"api_root,omitempty"`
	// GitURL is cloned when SourceMode is "git".
	GitURL     string        `yaml:"git_url,omitempty"`
	SourceMode SourceMode    `yaml:"source_mode"`
	ProbePath  string        `yaml:"probe_path"` // build-tool entry point inside a branch
	Timeout    time.Duration `yaml:"timeout"`
	Retry      RetryConfig   `yaml:"retry"`
	// CloneTimeout bounds one git clone in git mode; Timeout bounds single HTTP requests.
	CloneTimeout time.Duration `yaml:"clone_timeout,omitempty"`
	// CloneDepth is the git clone depth; an explicit 0 clones full history.
	CloneDepth *int `yaml:"clone_depth,omitempty"`
	// Token authenticates contents API listings and git clones. Usually ${GITHUB_TOKEN}.
	Token string `yaml:"token,omitempty"`
}

// RetryConfig configures retries of transient fetch failures.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	// MaxRetries is nil when unset so an explicit 0 can disable retries.
	MaxRetries *int `yaml:"max_retries,omitempty"`
}

// CacheConfig configures the on-disk cache.
type CacheConfig struct {
	Root string `yaml:"root"`
	// PurgeSchedule is an optional interval for purging all branch caches.
	PurgeSchedule time.Duration `yaml:"purge_schedule,omitempty"`
	// ScratchTTL is how long an abandoned download scratch dir may live.
	ScratchTTL      time.Duration `yaml:"scratch_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// BuildConfig configures the external builder.
type BuildConfig struct {
	Command string         `yaml:"command"`
	Args    []string       `yaml:"args,omitempty"`
	Timeout time.Duration  `yaml:"timeout"`
	Options map[string]any `yaml:"options,omitempty"`
}

// CompileConfig configures the external minifying compiler.
type CompileConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// DownloadConfig configures custom builds assembled from module parts.
type DownloadConfig struct {
	SourceDir string   `yaml:"source_dir"`
	Version   string   `yaml:"version"`
	Banner    []string `yaml:"banner,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level       LogLevel  `yaml:"level"`
	Format      LogFormat `yaml:"format"`
	IncidentDir string    `yaml:"incident_dir"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventsConfig configures the build event history.
type EventsConfig struct {
	DBPath string `yaml:"db_path,omitempty"` // empty disables, ":memory:" keeps it in process
}

// NotifyConfig configures NATS artifact notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	// #nosec G304 - path comes from the operator
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML (after environment expansion), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

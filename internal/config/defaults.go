package config

import "time"

const (
	defaultRawRoot = "https://raw.githubusercontent.com/highcharts/highcharts"
	defaultAPIRoot = "https://api.github.com/repos/highcharts/highcharts/contents"
	defaultGitURL  = "https://github.com/highcharts/highcharts.git"
	defaultProbe   = "assembler/build.js"
	defaultSubject = "distbuilder.artifact.built"
	defaultVersion = "custom build"

	defaultMaxRetries = 2
	defaultCloneDepth = 1
)

// DefaultBanner is prepended to every custom build entry module.
var DefaultBanner = []string{
	"/**",
	" * @license @product.name@ JS v@product.version@ (@product.date@)",
	" *",
	" * License: www.highcharts.com/license",
	" */",
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.DefaultBranch == "" {
		cfg.Server.DefaultBranch = "master"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Remote.RawRoot == "" {
		cfg.Remote.RawRoot = defaultRawRoot
	}
	if cfg.Remote.APIRoot == "" {
		cfg.Remote.APIRoot = defaultAPIRoot
	}
	if cfg.Remote.GitURL == "" {
		cfg.Remote.GitURL = defaultGitURL
	}
	cfg.Remote.SourceMode = NormalizeSourceMode(string(cfg.Remote.SourceMode))
	if cfg.Remote.ProbePath == "" {
		cfg.Remote.ProbePath = defaultProbe
	}
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 15 * time.Second
	}
	cfg.Remote.Retry.Backoff = NormalizeRetryBackoff(string(cfg.Remote.Retry.Backoff))
	if cfg.Remote.Retry.Backoff == "" {
		cfg.Remote.Retry.Backoff = RetryBackoffExponential
	}
	if cfg.Remote.Retry.Initial <= 0 {
		cfg.Remote.Retry.Initial = 200 * time.Millisecond
	}
	if cfg.Remote.Retry.Max <= 0 {
		cfg.Remote.Retry.Max = 5 * time.Second
	}
	// Distinguish between an unset value and an explicit 0
	if cfg.Remote.Retry.MaxRetries == nil {
		cfg.Remote.Retry.MaxRetries = intPtr(defaultMaxRetries)
	}
	if cfg.Remote.CloneTimeout <= 0 {
		cfg.Remote.CloneTimeout = 2 * time.Minute
	}
	if cfg.Remote.CloneDepth == nil {
		cfg.Remote.CloneDepth = intPtr(defaultCloneDepth)
	}

	if cfg.Cache.Root == "" {
		cfg.Cache.Root = "./tmp"
	}
	if cfg.Cache.ScratchTTL <= 0 {
		cfg.Cache.ScratchTTL = time.Hour
	}
	if cfg.Cache.JanitorInterval <= 0 {
		cfg.Cache.JanitorInterval = 10 * time.Minute
	}

	if cfg.Build.Timeout <= 0 {
		cfg.Build.Timeout = 2 * time.Minute
	}
	if cfg.Compile.Timeout <= 0 {
		cfg.Compile.Timeout = 2 * time.Minute
	}

	if cfg.Download.SourceDir == "" {
		cfg.Download.SourceDir = "./source/download/js"
	}
	if cfg.Download.Version == "" {
		cfg.Download.Version = defaultVersion
	}
	if len(cfg.Download.Banner) == 0 {
		cfg.Download.Banner = append([]string(nil), DefaultBanner...)
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	if cfg.Logging.IncidentDir == "" {
		cfg.Logging.IncidentDir = "./logs"
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = defaultSubject
	}
}

func intPtr(v int) *int { return &v }

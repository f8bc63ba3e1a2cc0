package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
build:
  command: node
  args: ["assembler/cli.js"]
compile:
  command: node
  args: ["compile.js"]
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "master", cfg.Server.DefaultBranch)
	assert.Equal(t, SourceModeHTTP, cfg.Remote.SourceMode)
	assert.Equal(t, "assembler/build.js", cfg.Remote.ProbePath)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, RetryBackoffExponential, cfg.Remote.Retry.Backoff)
	require.NotNil(t, cfg.Remote.Retry.MaxRetries)
	assert.Equal(t, 2, *cfg.Remote.Retry.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Remote.CloneTimeout)
	require.NotNil(t, cfg.Remote.CloneDepth)
	assert.Equal(t, 1, *cfg.Remote.CloneDepth)
	assert.Equal(t, "./tmp", cfg.Cache.Root)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.Equal(t, DefaultBanner, cfg.Download.Banner)
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DIST_CACHE_ROOT", "/var/cache/dist")
	cfg, err := Parse([]byte(minimalYAML + "cache:\n  root: ${DIST_CACHE_ROOT}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/dist", cfg.Cache.Root)
}

func TestParse_DurationsAndModes(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
remote:
  source_mode: GIT
  timeout: 3s
  retry:
    backoff: linear
    max_retries: 4
logging:
  level: DEBUG
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, SourceModeGit, cfg.Remote.SourceMode)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, RetryBackoffLinear, cfg.Remote.Retry.Backoff)
	require.NotNil(t, cfg.Remote.Retry.MaxRetries)
	assert.Equal(t, 4, *cfg.Remote.Retry.MaxRetries)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing build command", "compile:\n  command: node\n"},
		{"missing compile command", "build:\n  command: node\n"},
		{"bad source mode", minimalYAML + "remote:\n  source_mode: ftp\n"},
		{"non http raw root", minimalYAML + "remote:\n  raw_root: file:///tmp\n"},
		{"negative retries", minimalYAML + "remote:\n  retry:\n    max_retries: -1\n"},
		{"negative clone depth", minimalYAML + "remote:\n  clone_depth: -1\n"},
		{"reserved default branch", minimalYAML + "server:\n  default_branch: download\n"},
		{"hidden default branch", minimalYAML + "server:\n  default_branch: .x\n"},
		{"default branch with slash", minimalYAML + "server:\n  default_branch: a/b\n"},
		{"admin clashes with public", minimalYAML + "server:\n  addr: ':80'\n  admin_addr: ':80'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestParse_ExplicitZeroIsKept(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "remote:\n  clone_depth: 0\n  retry:\n    max_retries: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, *cfg.Remote.Retry.MaxRetries)
	assert.Equal(t, 0, *cfg.Remote.CloneDepth)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestInit_WritesLoadableExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node", cfg.Build.Command)
	assert.True(t, cfg.Metrics.Enabled)

	require.Error(t, Init(path, false), "existing file must not be overwritten without force")
	require.NoError(t, Init(path, true))
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("quadratic"))
	assert.Equal(t, RetryBackoffFixed, NormalizeRetryBackoff(" Fixed "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("verbose"))
	assert.Equal(t, SourceModeHTTP, NormalizeSourceMode(""))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"logging:\n  level: debug\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
		assert.Equal(t, cfg, w.Current())
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// reservedDownloadBranch is the cache directory of custom build jobs.
const reservedDownloadBranch = "download"

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error

	if c.Build.Command == "" {
		errs = append(errs, errors.New("build.command is required"))
	}
	if c.Compile.Command == "" {
		errs = append(errs, errors.New("compile.command is required"))
	}
	if err := validateURL("remote.raw_root", c.Remote.RawRoot); err != nil {
		errs = append(errs, err)
	}
	switch c.Remote.SourceMode {
	case SourceModeHTTP:
		if err := validateURL("remote.api_root", c.Remote.APIRoot); err != nil {
			errs = append(errs, err)
		}
	case SourceModeGit:
		if c.Remote.GitURL == "" {
			errs = append(errs, errors.New("remote.git_url is required when source_mode is git"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported remote.source_mode %q", c.Remote.SourceMode))
	}
	if c.Remote.Retry.MaxRetries != nil && *c.Remote.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("remote.retry.max_retries cannot be negative"))
	}
	if c.Remote.CloneDepth != nil && *c.Remote.CloneDepth < 0 {
		errs = append(errs, errors.New("remote.clone_depth cannot be negative"))
	}
	if err := validateBranch(c.Server.DefaultBranch); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.PurgeSchedule < 0 {
		errs = append(errs, errors.New("cache.purge_schedule cannot be negative"))
	}
	if c.Server.AdminAddr != "" && c.Server.AdminAddr == c.Server.Addr {
		errs = append(errs, errors.New("server.admin_addr must differ from server.addr"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// validateBranch applies the rules request paths apply to a branch segment,
// so the default branch cannot turn every short path into a 400.
func validateBranch(branch string) error {
	if branch == "" || branch == reservedDownloadBranch || strings.HasPrefix(branch, ".") {
		return fmt.Errorf("server.default_branch %q is empty, hidden or reserved", branch)
	}
	for _, c := range branch {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_':
		default:
			return fmt.Errorf("server.default_branch %q contains %q", branch, c)
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}

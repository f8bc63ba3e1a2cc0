package config

import (
	"log/slog"
	"strings"
)

// enumNormalizer maps case-insensitive user input onto a typed enum value.
type enumNormalizer[T comparable] struct {
	values       map[string]T
	defaultValue T
}

func newEnumNormalizer[T comparable](values map[string]T, defaultValue T) enumNormalizer[T] {
	return enumNormalizer[T]{values: values, defaultValue: defaultValue}
}

func (n enumNormalizer[T]) normalize(raw string) T {
	if v, ok := n.values[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return v
	}
	return n.defaultValue
}

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = newEnumNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, "")

// NormalizeRetryBackoff converts user input into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffNormalizer.normalize(raw)
}

// SourceMode selects how branch source trees are mirrored.
type SourceMode string

const (
	SourceModeHTTP SourceMode = "http"
	SourceModeGit  SourceMode = "git"
)

var sourceModeNormalizer = newEnumNormalizer(map[string]SourceMode{
	"":     SourceModeHTTP,
	"http": SourceModeHTTP,
	"git":  SourceModeGit,
}, SourceMode("unknown"))

// NormalizeSourceMode converts user input into a SourceMode. Empty input means http.
func NormalizeSourceMode(raw string) SourceMode {
	return sourceModeNormalizer.normalize(raw)
}

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = newEnumNormalizer(map[string]LogLevel{
	"debug": LogLevelDebug,
	"info":  LogLevelInfo,
	"warn":  LogLevelWarn,
	"error": LogLevelError,
}, LogLevelInfo)

func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.normalize(raw)
}

// SlogLevel converts the configured level for slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = newEnumNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.normalize(raw)
}

// Package errors provides the classified error primitives used across distbuilder.
//
// Every stage of the artifact pipeline returns a ClassifiedError (or wraps one)
// so the HTTP boundary can pick a status code and decide whether the failure
// deserves an incident record without inspecting error strings.
//
// Key features:
//   - ErrorCategory: invalid request, not found, upstream, fetch, build, compile, io
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: whether a caller may retry (never, backoff, ...)
//   - ErrorBuilder: fluent API for creating classified errors
//   - HTTP and CLI adapters plus an IncidentLog for timestamped diagnostics
//
// Example usage:
//
//	err := errors.FetchFailed("download master file").
//		WithCause(cause).
//		WithContext("url", url).
//		Build()
package errors

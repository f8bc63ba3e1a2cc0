package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

// WithCause sets the wrapped error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for the pipeline taxonomy.

// InvalidRequest creates an error for a malformed request. Logged as a warning only.
func InvalidRequest(message string) *ErrorBuilder {
	return NewError(CategoryInvalidRequest, message).Warning()
}

// NotFound creates an error for an object that does not exist.
func NotFound(message string) *ErrorBuilder {
	return NewError(CategoryNotFound, message).Warning()
}

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// UpstreamUnavailable creates an error for an unreachable remote (typically retryable).
func UpstreamUnavailable(message string) *ErrorBuilder {
	return NewError(CategoryUpstreamUnavailable, message).Retryable()
}

// FetchFailed creates an error for a failed download (typically retryable).
func FetchFailed(message string) *ErrorBuilder {
	return NewError(CategoryFetchFailed, message).Retryable()
}

// BuildFailed creates an error for a failed external build step.
func BuildFailed(message string) *ErrorBuilder {
	return NewError(CategoryBuildFailed, message)
}

// CompileFailed creates an error for a failed minification step.
func CompileFailed(message string) *ErrorBuilder {
	return NewError(CategoryCompileFailed, message)
}

// InternalIO creates an error for a local filesystem failure.
func InternalIO(message string) *ErrorBuilder {
	return NewError(CategoryInternalIO, message)
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}

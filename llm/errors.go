package llm

import "fmt"

// SDKError is the base error type shared by the whole hierarchy.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ConfigurationError marks a construction- or registration-time mistake:
// missing credential, duplicate tool name, unknown event type, unroutable
// model. Always fatal, never retried.
type ConfigurationError struct{ SDKError }

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{SDKError{Message: fmt.Sprintf(format, args...)}}
}

// ProviderError represents an error returned by an LLM backend.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// ContentFilterError reports that the backend suppressed the generation for
// safety/policy reasons rather than completing it.
type ContentFilterError struct{ ProviderError }

// RefusedError reports that the model explicitly declined to produce the
// requested output.
type RefusedError struct{ ProviderError }

// TruncatedError reports that generation stopped at the output-token limit,
// leaving the response incomplete.
type TruncatedError struct{ ProviderError }

// Non-provider errors.

// InvalidToolCallError reports a malformed tool-call argument payload from a
// backend. It is a fatal parse error, propagated rather than retried.
type InvalidToolCallError struct{ SDKError }

// UnknownModelError reports a model name no registered backend can serve.
type UnknownModelError struct{ SDKError }

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }

// ErrorFromStatusCode maps an HTTP status code to the matching error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401, 403:
		return &AuthenticationError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: pe.SDKError}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *AuthenticationError, *InvalidRequestError, *ContextLengthError,
		*ContentFilterError, *RefusedError, *TruncatedError,
		*ConfigurationError, *InvalidToolCallError, *UnknownModelError,
		*AbortError:
		return false
	case *RateLimitError, *ServerError, *NetworkError, *RequestTimeoutError:
		return true
	default:
		return false
	}
}

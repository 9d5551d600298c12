// Package memerrors provides a single classified error type for the memory
// pipeline, covering ingestion, extraction, and retrieval failures, together
// with the retry policy associated with each kind.
package memerrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind int8

const (
	// KindValidation covers malformed requests or conversations. Never retried.
	KindValidation Kind = iota
	// KindProviderNotFound means no parser/provider matched the input. Never retried.
	KindProviderNotFound
	// KindDetectionFailed means provider auto-detection could not classify the input.
	KindDetectionFailed
	// KindFileTooLarge means the ingest payload exceeded max_file_size.
	KindFileTooLarge
	// KindTooManyConversations means the ingest payload exceeded max_conversations_per_file.
	KindTooManyConversations
	// KindParse covers structured-output parse failures from the completion provider.
	KindParse
	// KindRateLimit is recovered locally by the rate-limit queue; surfaced only
	// after the retry budget is exhausted, at which point it becomes KindLLM.
	KindRateLimit
	// KindLLM covers completion-provider failures (5xx, transport errors).
	KindLLM
	// KindStorage covers storage-client failures. Never retried at this layer.
	KindStorage
	// KindCancelled covers context cancellation/deadline propagation.
	KindCancelled
)

// String returns the wire-stable name of the error kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindProviderNotFound:
		return "provider_not_found"
	case KindDetectionFailed:
		return "detection_failed"
	case KindFileTooLarge:
		return "file_too_large"
	case KindTooManyConversations:
		return "too_many_conversations"
	case KindParse:
		return "parse_error"
	case KindRateLimit:
		return "rate_limit"
	case KindLLM:
		return "llm_error"
	case KindStorage:
		return "storage_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RetryConfig defines exponential backoff parameters for a retryable error kind.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfigs is the per-Kind retry table. Only kinds the retry
// policy ever consults are listed; kinds absent here are treated as
// non-retryable by IsRetryable.
//
//nolint:gochecknoglobals // configuration table, acceptable as package default
var DefaultRetryConfigs = map[Kind]RetryConfig{
	KindRateLimit: {
		MaxRetries:    6,
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
	KindLLM: {
		MaxRetries:    4,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
}

// Error is the single classified error type used across the pipeline.
type Error struct {
	Err         error  // wrapped underlying error, if any
	Message     string // human-readable description
	RawResponse string // truncated raw response body, for parse_error debugging
	RetryAfter  time.Duration
	Kind        Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind.String(), e.Err)
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether this error kind is ever retried by the
// completion-provider retry middleware. Everything not in this allowlist is
// surfaced immediately.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindLLM:
		return true
	default:
		return false
	}
}

// RetryConfigFor returns the retry configuration for this error's kind, or the
// zero-retry configuration if the kind is not retryable.
func (e *Error) RetryConfigFor() RetryConfig {
	if cfg, ok := DefaultRetryConfigs[e.Kind]; ok {
		return cfg
	}
	return RetryConfig{}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err and true, or (0, false) if err is not a *Error.
func KindOf(err error) (Kind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return 0, false
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

// NewParseError creates a parse_error carrying a truncated raw-response preview.
func NewParseError(cause error, rawResponse string) *Error {
	const previewLen = 500
	preview := rawResponse
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "...[truncated]"
	}
	return &Error{
		Kind:        KindParse,
		Err:         cause,
		Message:     "failed to parse structured output",
		RawResponse: preview,
	}
}

// NewRateLimitError creates a rate_limit error carrying the provider's retry-after hint.
func NewRateLimitError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    fmt.Sprintf("rate limited, retry after %v", retryAfter),
		RetryAfter: retryAfter,
	}
}

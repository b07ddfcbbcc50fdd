package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the completion service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionBusy indicates a session already has a turn in flight.
	ErrSessionBusy = errors.New("session busy")

	// ErrToolNotFound indicates an invocation named an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrContextLength indicates the prompt exceeded the model's context window.
	// A smaller model will not fare better, so no fallback is attempted.
	ErrContextLength = errors.New("context length exceeded")
)

// ErrorKind classifies failures so that every component reports the same shape.
type ErrorKind string

// Error kinds.
const (
	// KindValidationRejected marks tool arguments outside the declared policy.
	// Surfaced to the model as a normal result.
	KindValidationRejected ErrorKind = "validation_rejected"

	// KindExecutionFailed marks a tool process that exited unsuccessfully
	// or could not be started.
	KindExecutionFailed ErrorKind = "execution_failed"

	// KindExecutionTimedOut marks a tool process killed at its deadline.
	KindExecutionTimedOut ErrorKind = "execution_timed_out"

	// KindEmbeddingUnavailable marks an embedding request that exhausted retries.
	KindEmbeddingUnavailable ErrorKind = "embedding_unavailable"

	// KindChunkingError marks input that cannot be decoded as text.
	KindChunkingError ErrorKind = "chunking_error"

	// KindStoreUnavailable marks lost connectivity with the vector or session store.
	KindStoreUnavailable ErrorKind = "store_unavailable"

	// KindConfiguration marks an unrecoverable configuration problem.
	KindConfiguration ErrorKind = "configuration"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrValidationRejected   = &Error{Kind: KindValidationRejected}
	ErrExecutionFailed      = &Error{Kind: KindExecutionFailed}
	ErrExecutionTimedOut    = &Error{Kind: KindExecutionTimedOut}
	ErrEmbeddingUnavailable = &Error{Kind: KindEmbeddingUnavailable}
	ErrChunking             = &Error{Kind: KindChunkingError}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrConfiguration        = &Error{Kind: KindConfiguration}
)

// Error is a classified failure carrying a kind, a message and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Errorf creates a classified error with a formatted message.
// A %w verb in format is preserved as the cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil && !strings.HasSuffix(msg, e.Err.Error()) {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in err's chain,
// or the empty kind if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ProviderError is returned by remote AI adapters when the provider
// answers with a non-success HTTP status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
// Rate limiting and server-side failures are transient.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

package domain

import "errors"

// Error taxonomy for the pipeline. Adapters wrap the sentinel their failure
// maps to, so callers can branch with errors.Is.
var (
	// ErrEmbeddingUnavailable indicates a network-level or transient failure
	// of the embedding service.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrEmbeddingRejected indicates the embedding service refused the input.
	ErrEmbeddingRejected = errors.New("embedding request rejected")

	// ErrStoreUnavailable indicates the document store could not be reached
	// or the connection pool timed out under load.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrCompletionTransient indicates a retriable completion failure
	// (timeout, connection reset, 5xx, rate limit).
	ErrCompletionTransient = errors.New("completion service temporarily unavailable")

	// ErrCompletionRejected indicates a non-retriable completion failure
	// (authentication, malformed request).
	ErrCompletionRejected = errors.New("completion request rejected")

	// ErrSessionBusy indicates the session already has an in-flight run.
	// Concurrent runs within one session are rejected, not queued.
	ErrSessionBusy = errors.New("session has a run in flight")

	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage indicates a chat request with no message text.
	ErrEmptyMessage = errors.New("message must not be empty")

	// ErrContextBudgetViolation indicates the assembler produced a context
	// over budget. This is an internal invariant failure, never surfaced to
	// clients as-is.
	ErrContextBudgetViolation = errors.New("assembled context exceeds budget")
)

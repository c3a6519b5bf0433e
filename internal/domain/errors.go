package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Component-local recoverable conditions (empty retrieval,
// missing due date) are normalized into empty values and never reach these;
// cross-component failures propagate as one of the kinds below up to the
// request boundary, which maps them to a user-facing message.
var (
	// ErrValidation marks malformed or oversized input. Not retried.
	ErrValidation = errors.New("invalid input")

	// ErrAuthFailed marks an exhausted credential exchange. Fatal for the
	// current request.
	ErrAuthFailed = errors.New("credential exchange failed")

	// ErrEmbedding marks bad input to the embedding provider. The caller
	// must fix the input, typically by pre-truncating via the chunker.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexCorrupt marks unreadable or mismatched index data on load.
	// The index resets to empty; startup continues.
	ErrIndexCorrupt = errors.New("index data unreadable")

	// ErrModelUnavailable marks a downstream generation failure after retry.
	ErrModelUnavailable = errors.New("model service unavailable")

	// ErrTimeout marks an outbound call exceeding its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// UpstreamError wraps one of the taxonomy kinds with the HTTP status and
// response body of the failing downstream call, preserved for diagnostics.
type UpstreamError struct {
	Kind   error
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: upstream status %d", e.Kind, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Kind }

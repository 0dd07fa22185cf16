// ABOUTME: Synthesis error taxonomy
// ABOUTME: Classifies failures as retryable, protocol-level, or unsupported
package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is a transient transport failure; the orchestrator
	// retries these with backoff before failing the session.
	ErrNetwork = errors.New("network failure")

	// ErrProtocol is a definitive backend contract mismatch (4xx,
	// malformed response); never retried.
	ErrProtocol = errors.New("protocol error")

	// ErrUnsupportedOperation means the backend does not expose a
	// required protocol step. Distinct from synthesized silence.
	ErrUnsupportedOperation = errors.New("operation not supported by backend")

	// ErrTimeout means the per-request deadline elapsed before the
	// session reached a terminal protocol state.
	ErrTimeout = errors.New("synthesis deadline exceeded")

	// ErrCancelled means the caller cancelled the session.
	ErrCancelled = errors.New("synthesis cancelled")
)

// ServerError carries the backend's HTTP status for classification
type ServerError struct {
	Status   int
	Endpoint string
	Message  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("backend returned %d on %s: %s", e.Status, e.Endpoint, e.Message)
}

// Unwrap maps server errors onto the taxonomy: 5xx is a transient
// network-class failure, anything else is a protocol error.
func (e *ServerError) Unwrap() error {
	if e.Status >= 500 {
		return ErrNetwork
	}
	return ErrProtocol
}

// Retryable reports whether the orchestrator may retry after err
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

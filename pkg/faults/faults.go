// Package faults classifies errors into the engine's error kinds.
// Subsystems wrap causes with a Kind; the executor and API layer branch
// on the kind rather than on concrete error types.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the engine-wide error taxonomy.
type Kind string

const (
	// KindValidation marks bad input. Never retried.
	KindValidation Kind = "validation"
	// KindCycleDetected marks a dependency cycle in a plan. Never retried.
	KindCycleDetected Kind = "cycle_detected"
	// KindAgentNotFound marks a step referencing an unregistered agent.
	KindAgentNotFound Kind = "agent_not_found"
	// KindBackendUnavailable marks a missing, disabled, or circuit-open
	// backend. Degradation path: contributes an empty result, not fatal.
	KindBackendUnavailable Kind = "backend_unavailable"
	// KindBackendTimeout marks a transient backend failure. Retried with backoff.
	KindBackendTimeout Kind = "backend_timeout"
	// KindLLMParse marks unparseable LLM output. Falls back, no hot-path retry.
	KindLLMParse Kind = "llm_parse_error"
	// KindLLMBackend marks a transient LLM transport failure. One retry.
	KindLLMBackend Kind = "llm_backend_error"
	// KindContextOverflow surfaces only when all window strategies are exhausted.
	KindContextOverflow Kind = "context_overflow"
	// KindCancelled is terminal; never retried.
	KindCancelled Kind = "cancelled"
	// KindInternal marks a bug. Logged, surfaced as a 5xx-equivalent.
	KindInternal Kind = "internal"
)

// Error carries a kind, a human-readable message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause returns nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain. Context cancellation and
// deadline expiry classify as cancelled / backend_timeout respectively;
// anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindBackendTimeout
	}
	return KindInternal
}

// Transient reports whether the error should be retried with backoff.
// Circuit-open and disabled backends are deliberately not transient:
// they take the degradation path instead of burning retry budget.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindBackendTimeout, KindLLMBackend:
		return true
	default:
		return false
	}
}

// Message returns the classified message without the cause chain, safe
// to surface to clients.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal error"
}

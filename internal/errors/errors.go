// Package errors provides domain-specific error types for evbridge.
//
// These types carry structured context (operation, endpoint, port,
// retryability) so callers on the network goroutine can decide whether
// to retry, rebind, or drop, and so log lines say what was attempted.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrRecvTimeout     = errors.New("receive timed out")
	ErrReplyPending    = errors.New("reply owed for previous request")
	ErrNoRequest       = errors.New("no request awaiting reply")
	ErrNotBound        = errors.New("responder is not bound")
	ErrContextReleased = errors.New("socket context handle released")
	ErrStopped         = errors.New("listener stopped")
	ErrStopTimeout     = errors.New("listener did not stop in time")
	ErrSyncTimeout     = errors.New("timed out waiting for port change")
	ErrInvalidPort     = errors.New("invalid port")
)

// ── Structured error types ───────────────────────────────────────────

// ContextError reports that the shared messaging context could not be
// created.  It is fatal to the networking subsystem.
type ContextError struct {
	Err error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("create socket context: %v", e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// BindError represents a failure to bind the reply socket.
type BindError struct {
	Port      uint16 // requested port, 0 = any
	Endpoint  string // endpoint passed to bind
	Context   string // caller-supplied description
	Err       error
	Retryable bool
}

func (e *BindError) Error() string {
	s := fmt.Sprintf("bind %s (port %s)", e.Endpoint, PortLabel(e.Port))
	if e.Context != "" {
		s += " " + e.Context
	}
	s += fmt.Sprintf(": %v", e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *BindError) Unwrap() error { return e.Err }

// NetworkError represents a failure in a socket operation.
type NetworkError struct {
	Op        string // "recv", "send", "connect"
	Addr      string // endpoint involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MessageError describes an incoming message that could not be turned
// into a command or trigger.
type MessageError struct {
	Raw    string
	Reason string
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("malformed message %q: %s", e.Raw, e.Reason)
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError with an explicit retryability verdict.
func Wrap(op, addr string, err error, retryable bool) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err, Retryable: retryable}
}

// Malformed creates a MessageError.
func Malformed(raw, reason string) *MessageError {
	return &MessageError{Raw: raw, Reason: reason}
}

// PortLabel renders 0 as "*" (any free port).
func PortLabel(port uint16) string {
	if port == 0 {
		return "*"
	}
	return fmt.Sprintf("%d", port)
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var be *BindError
	if errors.As(err, &be) {
		return be.Retryable
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsTemporary reports whether err represents a temporary condition.
func IsTemporary(err error) bool {
	if errors.Is(err, ErrRecvTimeout) {
		return true
	}
	return IsRetryable(err)
}

// IsFatal reports whether err means networking cannot continue at all.
func IsFatal(err error) bool {
	var ce *ContextError
	return errors.As(err, &ce)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Timeout()
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }

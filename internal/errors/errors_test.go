package errors

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "recv", Addr: "tcp://*:5556", Err: io.EOF, Retryable: true},
			want: "recv tcp://*:5556: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "send", Addr: "tcp://*:5556", Err: fmt.Errorf("socket closed")},
			want: "send tcp://*:5556: socket closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "recv", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestBindError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  BindError
		want string
	}{
		{
			name: "explicit port with context",
			err: BindError{
				Port: 5556, Endpoint: "tcp://*:5556", Context: "while rebinding",
				Err: fmt.Errorf("address already in use"), Retryable: true,
			},
			want: "bind tcp://*:5556 (port 5556) while rebinding: address already in use (retryable)",
		},
		{
			name: "any port",
			err:  BindError{Endpoint: "tcp://*:*", Err: fmt.Errorf("no such device")},
			want: "bind tcp://*:* (port *): no such device",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextError(t *testing.T) {
	inner := fmt.Errorf("too many open files")
	err := &ContextError{Err: inner}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
	if !IsFatal(fmt.Errorf("startup: %w", err)) {
		t.Error("wrapped ContextError should be fatal")
	}
	if IsFatal(&BindError{Err: inner}) {
		t.Error("bind errors are not fatal")
	}
}

func TestMessageError_Format(t *testing.T) {
	err := Malformed("TTL Channel=x", "unknown channel \"x\"")
	want := `malformed message "TTL Channel=x": unknown channel "x"`
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 0-65535",
				Hint:    "use 0 to pick any free port",
			},
			want: "config: --port=99999: out of range 0-65535\n  hint: use 0 to pick any free port",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "send",
				Message: "endpoint required in send mode",
			},
			want: "config: --send: endpoint required in send mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("resource temporarily unavailable")
	err := Wrap("recv", "tcp://*:5556", inner, true)

	if err.Op != "recv" || err.Addr != "tcp://*:5556" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestPortLabel(t *testing.T) {
	if got := PortLabel(0); got != "*" {
		t.Errorf("PortLabel(0) = %q, want *", got)
	}
	if got := PortLabel(5556); got != "5556" {
		t.Errorf("PortLabel(5556) = %q, want 5556", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "recv", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "recv", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"retryable bind", &BindError{Endpoint: "x", Err: io.EOF, Retryable: true}, true},
		{"wrapped bind", fmt.Errorf("outer: %w", &BindError{Endpoint: "x", Err: io.EOF}), false},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTemporary(t *testing.T) {
	if !IsTemporary(ErrRecvTimeout) {
		t.Error("receive timeout should be temporary")
	}
	if !IsTemporary(fmt.Errorf("loop: %w", ErrRecvTimeout)) {
		t.Error("wrapped receive timeout should be temporary")
	}
	ne := &NetworkError{Op: "recv", Addr: "x", Err: io.EOF, Retryable: true}
	if !IsTemporary(ne) {
		t.Error("expected temporary")
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "read",
		Net: "tcp",
		Err: &net.DNSError{IsTimeout: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("timed-out OpError should be retryable")
	}
}

func TestSentinels(t *testing.T) {
	// Verify sentinel errors are distinct.
	sentinels := []error{
		ErrRecvTimeout, ErrReplyPending, ErrNoRequest, ErrNotBound,
		ErrContextReleased, ErrStopped, ErrStopTimeout, ErrSyncTimeout,
		ErrInvalidPort,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}

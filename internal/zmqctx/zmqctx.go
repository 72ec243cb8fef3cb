// Package zmqctx owns the ZeroMQ context shared by every socket in the
// process.
//
// A [Provider] hands out reference-counted [Handle]s.  The first
// Acquire creates the context; the Release of the last handle
// terminates it.  The process creates one Provider and passes it down
// explicitly, so teardown order is visible at the call sites.
package zmqctx

import (
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"evbridge/internal/errors"
)

// Socket is the subset of *zmq4.Socket used by the bridge.
type Socket interface {
	Bind(endpoint string) error
	Connect(endpoint string) error
	SetRcvtimeo(timeout time.Duration) error
	SetSndtimeo(timeout time.Duration) error
	SetLinger(linger time.Duration) error
	GetLastEndpoint() (string, error)
	RecvBytes(flags zmq4.Flag) ([]byte, error)
	Send(data string, flags zmq4.Flag) (int, error)
	Close() error
}

// Backend is a live messaging context.
type Backend interface {
	NewSocket(t zmq4.Type) (Socket, error)
	Term() error
}

// BackendFactory creates a Backend; it is called on first Acquire.
type BackendFactory func() (Backend, error)

// zmqBackend adapts *zmq4.Context to Backend.
type zmqBackend struct {
	ctx *zmq4.Context
}

func (b *zmqBackend) NewSocket(t zmq4.Type) (Socket, error) {
	s, err := b.ctx.NewSocket(t)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *zmqBackend) Term() error { return b.ctx.Term() }

// NewZMQBackend creates a real ZeroMQ context.
func NewZMQBackend() (Backend, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, err
	}
	return &zmqBackend{ctx: ctx}, nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithBackend replaces the ZeroMQ context factory.
func WithBackend(f BackendFactory) Option {
	return func(p *Provider) { p.factory = f }
}

// ── Provider ─────────────────────────────────────────────────────────

// Provider guarantees at most one live Backend at a time.
type Provider struct {
	mu      sync.Mutex
	factory BackendFactory
	backend Backend
	refs    int
}

// NewProvider returns a Provider that creates real ZeroMQ contexts
// unless overridden with [WithBackend].
func NewProvider(opts ...Option) *Provider {
	p := &Provider{factory: NewZMQBackend}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Acquire returns a handle to the shared context, creating it when no
// handle is outstanding.  A creation failure is returned as
// *errors.ContextError.
func (p *Provider) Acquire() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend == nil {
		b, err := p.factory()
		if err != nil {
			return nil, &errors.ContextError{Err: err}
		}
		if b == nil {
			return nil, &errors.ContextError{Err: fmt.Errorf("factory returned no context")}
		}
		p.backend = b
	}
	p.refs++
	return &Handle{provider: p, backend: p.backend}, nil
}

// Refs returns the number of outstanding handles.
func (p *Provider) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Live reports whether a context currently exists.
func (p *Provider) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend != nil
}

func (p *Provider) release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs--
	if p.refs > 0 {
		return nil
	}
	b := p.backend
	p.backend = nil
	p.refs = 0
	if err := b.Term(); err != nil {
		return fmt.Errorf("terminate socket context: %w", err)
	}
	return nil
}

// ── Handle ───────────────────────────────────────────────────────────

// Handle is one reference to the shared context.
type Handle struct {
	provider *Provider
	backend  Backend

	mu       sync.Mutex
	released bool
}

// NewSocket creates a socket of type t on the shared context.
func (h *Handle) NewSocket(t zmq4.Type) (Socket, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, errors.ErrContextReleased
	}
	return h.backend.NewSocket(t)
}

// Release drops this reference.  It is idempotent; the context is
// terminated when the last reference goes.  All sockets created from
// the handle must be closed first or termination blocks.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()
	return h.provider.release()
}

package core

import (
	"context"
	"io"
	"os"

	"evbridge/internal/capability"
	"evbridge/internal/session"
	"evbridge/internal/transport"
	"evbridge/util"
)

// SendMode talks to a running bridge: each message goes out as one
// request and each reply is printed.
type SendMode struct {
	Requester  transport.Requester
	Capability capability.Capability
	Logger     *util.Logger

	// Release, when set, drops the socket context reference after
	// the requester is closed.
	Release func() error

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *SendMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *SendMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run creates a session and hands it to the capability.  The
// requester is closed when Run returns.
func (m *SendMode) Run(ctx context.Context) error {
	defer func() {
		m.Requester.Close() //nolint:errcheck
		if m.Release != nil {
			m.Release() //nolint:errcheck
		}
	}()

	if zr, ok := m.Requester.(*transport.ZMQRequester); ok {
		m.Logger.Verbose("sending to %s", zr.Endpoint())
	}

	sess := session.New(m.Requester, m.stdin(), m.stdout(), m.Logger)
	return m.Capability.Handle(ctx, sess)
}

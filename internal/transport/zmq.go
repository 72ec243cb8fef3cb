package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"evbridge/internal/errors"
	"evbridge/internal/zmqctx"
	"evbridge/util"
)

// DefaultRequestTimeout bounds a request whose context has no deadline.
const DefaultRequestTimeout = 2 * time.Second

// ZMQOptions configures a ZMQRequester.
type ZMQOptions struct {
	// Probe, when set, is dialled before the socket is opened so an
	// absent bridge fails fast with "connection refused".
	Probe  Dialer
	Logger *util.Logger
}

// ZMQRequester talks to a bridge over a ZeroMQ REQ socket.
//
// A REQ socket that misses its reply cannot send again, so after any
// failed exchange the socket is closed and the next Request opens a
// fresh one.
type ZMQRequester struct {
	handle   *zmqctx.Handle
	endpoint string
	probe    Dialer
	logger   *util.Logger

	mu   sync.Mutex
	sock zmqctx.Socket
}

var _ Requester = (*ZMQRequester)(nil)

// NewZMQRequester returns a requester for endpoint
// ("tcp://host:port").  No socket is opened until the first Request.
func NewZMQRequester(h *zmqctx.Handle, endpoint string, opts ZMQOptions) (*ZMQRequester, error) {
	if !strings.HasPrefix(endpoint, "tcp://") {
		return nil, fmt.Errorf("endpoint %q: only tcp:// is supported", endpoint)
	}
	port, err := util.EndpointPort(endpoint)
	if err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, fmt.Errorf("endpoint %q: %w", endpoint, errors.ErrInvalidPort)
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.Nop()
	}
	return &ZMQRequester{
		handle:   h,
		endpoint: endpoint,
		probe:    opts.Probe,
		logger:   logger.With("endpoint", endpoint),
	}, nil
}

// Endpoint returns the address requests go to.
func (r *ZMQRequester) Endpoint() string { return r.endpoint }

// Request sends msg and waits for the reply.  Failures are returned as
// *errors.NetworkError; timeouts and refused connections are marked
// retryable.
func (r *ZMQRequester) Request(ctx context.Context, msg string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := DefaultRequestTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
		if timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}

	if r.sock == nil {
		if err := r.open(ctx); err != nil {
			return "", err
		}
	}
	if err := r.sock.SetSndtimeo(timeout); err != nil {
		r.reset()
		return "", errors.Wrap("configure", r.endpoint, err, false)
	}
	if err := r.sock.SetRcvtimeo(timeout); err != nil {
		r.reset()
		return "", errors.Wrap("configure", r.endpoint, err, false)
	}

	if _, err := r.sock.Send(msg, 0); err != nil {
		r.reset()
		return "", errors.Wrap("send", r.endpoint, err, retryableErrno(err))
	}
	reply, err := r.sock.RecvBytes(0)
	if err != nil {
		r.reset()
		return "", errors.Wrap("recv", r.endpoint, err, retryableErrno(err))
	}
	r.logger.Debug("%q -> %q", msg, reply)
	return string(reply), nil
}

// Close releases the socket.
func (r *ZMQRequester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sock == nil {
		return nil
	}
	err := r.sock.Close()
	r.sock = nil
	return err
}

func (r *ZMQRequester) open(ctx context.Context) error {
	if r.probe != nil {
		addr := strings.TrimPrefix(r.endpoint, "tcp://")
		if err := Probe(ctx, r.probe, addr); err != nil {
			return errors.Wrap("connect", r.endpoint, err, errors.IsRetryable(err) || isRefused(err))
		}
	}

	sock, err := r.handle.NewSocket(zmq4.REQ)
	if err != nil {
		return errors.Wrap("socket", r.endpoint, err, false)
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return errors.Wrap("configure", r.endpoint, err, false)
	}
	if err := sock.Connect(r.endpoint); err != nil {
		_ = sock.Close()
		return errors.Wrap("connect", r.endpoint, err, false)
	}
	r.sock = sock
	r.logger.Verbose("connected")
	return nil
}

func (r *ZMQRequester) reset() {
	if r.sock != nil {
		_ = r.sock.Close()
		r.sock = nil
	}
}

func retryableErrno(err error) bool {
	switch zmq4.AsErrno(err) {
	case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EINTR), zmq4.Errno(syscall.ECONNREFUSED):
		return true
	}
	return false
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

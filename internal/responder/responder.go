// Package responder wraps one ZeroMQ REP socket bound to a TCP port.
//
// A Responder is bound once, at construction, and never rebound: a port
// change always builds a new Responder.  The REP pattern requires every
// received request to be answered before the next receive; Responder
// enforces that alternation itself so a caller bug surfaces as an error
// instead of a wedged socket.
package responder

import (
	"fmt"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pebbe/zmq4"

	"evbridge/internal/errors"
	"evbridge/internal/zmqctx"
	"evbridge/util"
)

// DefaultRecvTimeout bounds each Receive so the owner can poll for
// rebind and stop requests while the peer is idle.
const DefaultRecvTimeout = 500 * time.Millisecond

// Options configures a Responder.
type Options struct {
	BindAddress string        // interface to bind; "" or "*" for all
	RecvTimeout time.Duration // 0 = DefaultRecvTimeout
	Logger      *util.Logger
}

// Responder owns one bound REP socket.
type Responder struct {
	id       string
	handle   *zmqctx.Handle
	socket   zmqctx.Socket
	endpoint string
	port     uint16
	valid    bool
	lastErr  error
	owed     bool // a request was received and not yet answered
	logger   *util.Logger
}

// New creates a REP socket on h and binds it to port (0 = any free
// port).  Failure leaves the Responder invalid with BoundPort() == 0
// and the cause in Err(); the socket, if created, is already closed.
func New(h *zmqctx.Handle, port uint16, opts Options) *Responder {
	timeout := opts.RecvTimeout
	if timeout <= 0 {
		timeout = DefaultRecvTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.Nop()
	}

	id := uuid.NewString()
	r := &Responder{
		id:       id,
		handle:   h,
		endpoint: util.Endpoint(opts.BindAddress, port),
		logger:   logger.With("responder", id[:8]),
	}

	sock, err := h.NewSocket(zmq4.REP)
	if err != nil {
		r.fail(port, "creating socket", err)
		return r
	}
	r.socket = sock

	if err := sock.SetLinger(0); err != nil {
		r.fail(port, "setting linger", err)
		return r
	}
	if err := sock.SetRcvtimeo(timeout); err != nil {
		r.fail(port, "setting receive timeout", err)
		return r
	}
	if err := sock.Bind(r.endpoint); err != nil {
		r.fail(port, "binding", err)
		return r
	}

	last, err := sock.GetLastEndpoint()
	if err != nil {
		r.fail(port, "reading bound endpoint", err)
		return r
	}
	bound, err := util.EndpointPort(last)
	if err != nil || bound == 0 || (port != 0 && bound != port) {
		if err == nil {
			err = fmt.Errorf("socket reports port %d", bound)
		}
		r.fail(port, "resolving bound port", err)
		return r
	}

	r.port = bound
	r.valid = true
	r.logger.Verbose("bound %s (requested %s)", last, errors.PortLabel(port))
	return r
}

func (r *Responder) fail(port uint16, context string, err error) {
	r.lastErr = &errors.BindError{
		Port:      port,
		Endpoint:  r.endpoint,
		Context:   "while " + context,
		Err:       err,
		Retryable: isRetryableErrno(err),
	}
	r.valid = false
	r.port = 0
	if r.socket != nil {
		_ = r.socket.Close()
		r.socket = nil
	}
}

// ID returns the instance id used in log lines.
func (r *Responder) ID() string { return r.id }

// Valid reports whether the socket is open and bound.
func (r *Responder) Valid() bool { return r.valid }

// BoundPort returns the bound port, or 0 if the Responder is invalid.
func (r *Responder) BoundPort() uint16 {
	if !r.valid {
		return 0
	}
	return r.port
}

// Err returns the last error recorded.
func (r *Responder) Err() error { return r.lastErr }

// ReportErr logs the last error together with message.
func (r *Responder) ReportErr(message string) {
	if r.lastErr == nil {
		return
	}
	r.logger.Error("%s: %v", message, r.lastErr)
}

// Receive waits for one request and copies it into buf, truncating
// messages longer than buf.  It returns errors.ErrRecvTimeout when
// nothing arrives within the receive timeout, and -1 with a
// *errors.NetworkError on a hard failure.
func (r *Responder) Receive(buf []byte) (int, error) {
	if !r.valid {
		return -1, errors.ErrNotBound
	}
	if r.owed {
		return -1, errors.ErrReplyPending
	}

	msg, err := r.socket.RecvBytes(0)
	if err != nil {
		if isTimeout(err) {
			return 0, errors.ErrRecvTimeout
		}
		r.lastErr = errors.Wrap("recv", r.endpoint, err, isRetryableErrno(err))
		return -1, r.lastErr
	}

	r.owed = true
	n := copy(buf, msg)
	if n < len(msg) {
		r.logger.Warn("message of %d bytes truncated to %d", len(msg), n)
	}
	return n, nil
}

// Send answers the outstanding request.  The alternation state is
// cleared even when the send fails, matching the socket, which drops a
// reply it cannot deliver.
func (r *Responder) Send(reply string) (int, error) {
	if !r.valid {
		return -1, errors.ErrNotBound
	}
	if !r.owed {
		return -1, errors.ErrNoRequest
	}
	r.owed = false

	n, err := r.socket.Send(reply, 0)
	if err != nil {
		r.lastErr = errors.Wrap("send", r.endpoint, err, isRetryableErrno(err))
		return n, r.lastErr
	}
	return n, nil
}

// Close closes the socket.  It is safe to call more than once.
func (r *Responder) Close() error {
	r.valid = false
	r.owed = false
	if r.socket == nil {
		return nil
	}
	err := r.socket.Close()
	r.socket = nil
	if err != nil {
		return errors.Wrap("close", r.endpoint, err, false)
	}
	return nil
}

// ── errno classification ─────────────────────────────────────────────

func isTimeout(err error) bool {
	return zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN)
}

func isRetryableErrno(err error) bool {
	switch zmq4.AsErrno(err) {
	case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EINTR), zmq4.Errno(syscall.EADDRINUSE):
		return true
	}
	return false
}

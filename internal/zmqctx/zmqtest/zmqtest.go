// Package zmqtest provides an in-memory stand-in for ZeroMQ REP sockets
// so the bridge can be tested without a live messaging stack.
//
// A [Network] tracks bound ports and routes requests to the socket that
// owns a port.  REP and REQ sockets enforce their alternation rules and
// record every out-of-order call as a violation instead of deadlocking.
package zmqtest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"evbridge/internal/zmqctx"
)

const firstEphemeral = 49152

type request struct {
	msg   string
	reply chan string
}

// Network is a fake TCP port space shared by fake sockets.
type Network struct {
	mu           sync.Mutex
	sockets      map[uint16]*Socket
	blocked      map[uint16]bool
	nextEph      uint16
	recvFailures int
	stall        *stall
	violations   []string
	binds        []uint16
	terms        int
	failContext  error
}

// NewNetwork returns an empty fake network.
func NewNetwork() *Network {
	return &Network{
		sockets: make(map[uint16]*Socket),
		blocked: make(map[uint16]bool),
		nextEph: firstEphemeral,
	}
}

// Factory returns a zmqctx.BackendFactory producing contexts on n.
func (n *Network) Factory() zmqctx.BackendFactory {
	return func() (zmqctx.Backend, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.failContext != nil {
			return nil, n.failContext
		}
		return &Backend{net: n}, nil
	}
}

// FailContext makes subsequent context creation fail with err.
func (n *Network) FailContext(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failContext = err
}

// Block makes binds to port fail with EADDRINUSE until unblocked.
func (n *Network) Block(port uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked[port] = true
}

// Unblock lifts a Block.
func (n *Network) Unblock(port uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked, port)
}

// FailRecv makes the next count receives on any socket fail hard.
func (n *Network) FailRecv(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recvFailures = count
}

type stall struct {
	entered chan struct{}
	release chan struct{}
}

// StallRecv makes the next receive on any socket ignore its timeout
// and block until release is called; it then fails with EAGAIN.
// entered is closed once a receive is stuck.
func (n *Network) StallRecv() (entered <-chan struct{}, release func()) {
	st := &stall{entered: make(chan struct{}), release: make(chan struct{})}
	n.mu.Lock()
	n.stall = st
	n.mu.Unlock()
	var once sync.Once
	return st.entered, func() { once.Do(func() { close(st.release) }) }
}

func (n *Network) takeStall() *stall {
	n.mu.Lock()
	defer n.mu.Unlock()
	st := n.stall
	n.stall = nil
	return st
}

// Violations returns every alternation violation observed so far.
func (n *Network) Violations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.violations...)
}

// Binds returns the ports of every successful bind, in order.
func (n *Network) Binds() []uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uint16(nil), n.binds...)
}

// Terms returns how many contexts have been terminated.
func (n *Network) Terms() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.terms
}

// Bound reports whether some open socket owns port.
func (n *Network) Bound(port uint16) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.sockets[port]
	return ok
}

// Request sends msg to the socket bound on port and waits for its reply.
func (n *Network) Request(ctx context.Context, port uint16, msg string) (string, error) {
	n.mu.Lock()
	s, ok := n.sockets[port]
	n.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("port %d: %w", port, syscall.ECONNREFUSED)
	}

	req := request{msg: msg, reply: make(chan string, 1)}
	select {
	case s.inbox <- req:
	case <-s.done:
		return "", fmt.Errorf("port %d: socket closed", port)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r, nil
	case <-s.done:
		return "", fmt.Errorf("port %d: socket closed before reply", port)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (n *Network) violate(format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.violations = append(n.violations, fmt.Sprintf(format, args...))
}

func (n *Network) takeRecvFailure() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.recvFailures > 0 {
		n.recvFailures--
		return true
	}
	return false
}

// ── Backend ──────────────────────────────────────────────────────────

// Backend is a fake messaging context.
type Backend struct {
	net *Network
}

// NewSocket implements zmqctx.Backend.
func (b *Backend) NewSocket(t zmq4.Type) (zmqctx.Socket, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		net:      b.net,
		typ:      t,
		rcvtimeo: -1,
		inbox:    make(chan request),
		done:     make(chan struct{}),
		replies:  make(chan string, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Term implements zmqctx.Backend.
func (b *Backend) Term() error {
	b.net.mu.Lock()
	defer b.net.mu.Unlock()
	b.net.terms++
	return nil
}

// ── Socket ───────────────────────────────────────────────────────────

// Socket is a fake REP or REQ socket.
type Socket struct {
	net *Network
	typ zmq4.Type

	mu       sync.Mutex
	rcvtimeo time.Duration
	port     uint16 // bound port (REP) or connected port (REQ)
	closed   bool
	pending  *request
	awaiting bool // REQ: request sent, reply not yet received

	inbox   chan request
	done    chan struct{}
	replies chan string
	ctx     context.Context
	cancel  context.CancelFunc
}

func parsePort(endpoint string) (string, bool) {
	i := strings.LastIndex(endpoint, ":")
	if !strings.HasPrefix(endpoint, "tcp://") || i < 0 {
		return "", false
	}
	return endpoint[i+1:], true
}

// Bind claims the port named by endpoint ("tcp://host:port" or
// "tcp://host:*").
func (s *Socket) Bind(endpoint string) error {
	portStr, ok := parsePort(endpoint)
	if !ok || s.typ != zmq4.REP {
		return syscall.EINVAL
	}

	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	var port uint16
	if portStr == "*" {
		for s.net.sockets[s.net.nextEph] != nil || s.net.blocked[s.net.nextEph] {
			s.net.nextEph++
		}
		port = s.net.nextEph
		s.net.nextEph++
	} else {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || p == 0 {
			return syscall.EINVAL
		}
		port = uint16(p)
		if s.net.blocked[port] || s.net.sockets[port] != nil {
			return syscall.EADDRINUSE
		}
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	s.net.sockets[port] = s
	s.net.binds = append(s.net.binds, port)
	return nil
}

// Connect points a REQ socket at the port named by endpoint.  Like a
// real connect it succeeds whether or not anything is bound there yet.
func (s *Socket) Connect(endpoint string) error {
	portStr, ok := parsePort(endpoint)
	if !ok || s.typ != zmq4.REQ {
		return syscall.EINVAL
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || p == 0 {
		return syscall.EINVAL
	}
	s.mu.Lock()
	s.port = uint16(p)
	s.mu.Unlock()
	return nil
}

// SetRcvtimeo sets the receive timeout (-1 blocks forever).
func (s *Socket) SetRcvtimeo(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcvtimeo = d
	return nil
}

// SetSndtimeo is accepted and ignored.
func (s *Socket) SetSndtimeo(time.Duration) error { return nil }

// SetLinger is accepted and ignored.
func (s *Socket) SetLinger(time.Duration) error { return nil }

// GetLastEndpoint returns the resolved endpoint after Bind.
func (s *Socket) GetLastEndpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == 0 {
		return "", nil
	}
	return fmt.Sprintf("tcp://0.0.0.0:%d", s.port), nil
}

// RecvBytes waits for the next request, bounded by the receive timeout.
func (s *Socket) RecvBytes(zmq4.Flag) ([]byte, error) {
	if s.typ == zmq4.REQ {
		return s.recvReply()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, syscall.ENOTSOCK
	}
	if s.pending != nil {
		s.mu.Unlock()
		s.net.violate("port %d: receive while reply owed", s.port)
		return nil, zmq4.EFSM
	}
	timeout := s.rcvtimeo
	s.mu.Unlock()

	if s.net.takeRecvFailure() {
		return nil, syscall.EIO
	}
	if st := s.net.takeStall(); st != nil {
		close(st.entered)
		<-st.release
		return nil, syscall.EAGAIN
	}

	var expire <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}

	select {
	case req := <-s.inbox:
		s.mu.Lock()
		s.pending = &req
		s.mu.Unlock()
		return []byte(req.msg), nil
	case <-expire:
		return nil, syscall.EAGAIN
	case <-s.done:
		return nil, syscall.ENOTSOCK
	}
}

// Send delivers the reply to the request being served.
func (s *Socket) Send(data string, _ zmq4.Flag) (int, error) {
	if s.typ == zmq4.REQ {
		return s.sendRequest(data)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return -1, syscall.ENOTSOCK
	}
	if s.pending == nil {
		port := s.port
		s.mu.Unlock()
		s.net.violate("port %d: send without request", port)
		return -1, zmq4.EFSM
	}
	s.pending.reply <- data
	s.pending = nil
	s.mu.Unlock()
	return len(data), nil
}

// Close releases the port.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	port := s.port
	close(s.done)
	s.mu.Unlock()
	s.cancel()
	if s.typ == zmq4.REQ {
		return nil
	}

	s.net.mu.Lock()
	if s.net.sockets[port] == s {
		delete(s.net.sockets, port)
	}
	s.net.mu.Unlock()
	return nil
}

// ── REQ side ─────────────────────────────────────────────────────────

func (s *Socket) sendRequest(data string) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return -1, syscall.ENOTSOCK
	}
	if s.awaiting {
		port := s.port
		s.mu.Unlock()
		s.net.violate("req to %d: send while reply outstanding", port)
		return -1, zmq4.EFSM
	}
	s.awaiting = true
	port := s.port
	s.mu.Unlock()

	// An unbound peer leaves the request unanswered, as a real REQ
	// socket would keep it queued.
	go func() {
		reply, err := s.net.Request(s.ctx, port, data)
		if err == nil {
			s.replies <- reply
		}
	}()
	return len(data), nil
}

func (s *Socket) recvReply() ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, syscall.ENOTSOCK
	}
	if !s.awaiting {
		port := s.port
		s.mu.Unlock()
		s.net.violate("req to %d: receive without request", port)
		return nil, zmq4.EFSM
	}
	timeout := s.rcvtimeo
	s.mu.Unlock()

	var expire <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case r := <-s.replies:
		s.mu.Lock()
		s.awaiting = false
		s.mu.Unlock()
		return []byte(r), nil
	case <-expire:
		return nil, syscall.EAGAIN
	case <-s.done:
		return nil, syscall.ENOTSOCK
	}
}

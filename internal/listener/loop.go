// Package listener runs the network goroutine: it owns the bound
// responder, answers every request, classifies it and hands it to the
// processing side through two queues.
//
// The loop is a small state machine:
//
//	Idle → Binding → Listening → (Rebinding → Binding) → Stopping → Stopped
//
// A failed bind drops back to Idle and retries on a backoff schedule
// until it succeeds or a newer port request arrives.  Stop and rebind
// requests are observed at the receive-timeout boundary, so neither
// can take longer than one timeout to be noticed.
package listener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"evbridge/internal/errors"
	"evbridge/internal/metrics"
	"evbridge/internal/queue"
	"evbridge/internal/responder"
	"evbridge/internal/retry"
	"evbridge/internal/router"
	"evbridge/internal/zmqctx"
	"evbridge/util"
)

// DefaultReply is sent in answer to every request.
const DefaultReply = "OK"

// ── State ────────────────────────────────────────────────────────────

// State is the loop's position in its lifecycle.
type State int32

const (
	Idle State = iota
	Binding
	Listening
	Rebinding
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Binding:
		return "binding"
	case Listening:
		return "listening"
	case Rebinding:
		return "rebinding"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ── Loop ─────────────────────────────────────────────────────────────

// Deps configures a Loop.  Handle, Port, Commands and Triggers are
// required.
type Deps struct {
	Handle   *zmqctx.Handle
	Port     *PortState
	Router   *router.Router
	Commands *queue.FIFO[router.Message]
	Triggers *queue.FIFO[router.TriggerEvent]
	Logger   *util.Logger
	Metrics  *metrics.Collector

	BindAddress     string
	RecvTimeout     time.Duration  // 0 = responder.DefaultRecvTimeout
	Reply           string         // "" = DefaultReply
	MaxMessage      int            // receive buffer size; 0 = util.DefaultBufSize
	Backoff         *retry.Backoff // nil = retry.BindBackoff()
	BreakerFailures int            // consecutive receive errors before a rebuild
}

// Loop is the network goroutine.  Create it with New, run it with
// Start and end it with Stop.
type Loop struct {
	d       Deps
	logger  *util.Logger
	breaker *retry.CircuitBreaker

	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// owned by the network goroutine
	resp    *responder.Responder
	served  uint64
	attempt int
	seq     uint64
}

// New validates d and returns an idle Loop.
func New(d Deps) (*Loop, error) {
	if d.Handle == nil || d.Port == nil || d.Commands == nil || d.Triggers == nil {
		return nil, fmt.Errorf("listener: handle, port state and queues are required")
	}
	if d.Router == nil {
		d.Router = router.New(nil)
	}
	if d.Logger == nil {
		d.Logger = util.Nop()
	}
	if d.Reply == "" {
		d.Reply = DefaultReply
	}
	if d.RecvTimeout <= 0 {
		d.RecvTimeout = responder.DefaultRecvTimeout
	}
	if d.Backoff == nil {
		d.Backoff = retry.BindBackoff()
	}

	l := &Loop{
		d:      d,
		logger: d.Logger.With("component", "listener"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	l.breaker = retry.NewCircuitBreaker(retry.ReceiveBreakerConfig(d.BreakerFailures))
	l.state.Store(int32(Idle))
	return l, nil
}

// State returns the current state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Done is closed when the goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Start launches the goroutine.  It ends when Stop is called or ctx is
// cancelled.  A Loop can be started once.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("listener: %w", errors.ErrStopped)
	}
	go l.run(ctx)
	return nil
}

// Stop asks the goroutine to exit and waits up to timeout for it.
// Once Stop returns nil the socket is closed and no further item is
// pushed to either queue.  Stopping a loop that never started is a
// no-op.
func (l *Loop) Stop(timeout time.Duration) error {
	l.stopOnce.Do(func() { close(l.stop) })
	if !l.started.Load() {
		l.setState(Stopped)
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.done:
		return nil
	case <-t.C:
		return fmt.Errorf("listener: %w after %v", errors.ErrStopTimeout, timeout)
	}
}

// StopRequested reports whether Stop has been called.
func (l *Loop) StopRequested() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Loop) setState(s State) {
	if old := State(l.state.Swap(int32(s))); old != s {
		l.logger.Debug("state %s -> %s", old, s)
	}
}

func (l *Loop) stopping(ctx context.Context) bool {
	select {
	case <-l.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// ── goroutine ────────────────────────────────────────────────────────

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp
	if l.d.MaxMessage > 0 && l.d.MaxMessage < len(buf) {
		buf = buf[:l.d.MaxMessage]
	}

	for !l.stopping(ctx) {
		if l.resp == nil {
			if !l.bind(ctx) {
				break
			}
			continue
		}
		if l.d.Port.Pending(l.served) {
			l.rebind()
			continue
		}
		l.serve(buf)
	}

	l.setState(Stopping)
	l.closeResponder()
	l.d.Port.ack(l.d.Port.rebindSeq.Load())
	l.setState(Stopped)
	l.logger.Verbose("stopped")
}

// bind builds a responder for the newest request.  On failure it waits
// out the backoff, waking early for a newer request; it returns false
// only when the loop should stop.
func (l *Loop) bind(ctx context.Context) bool {
	select {
	case <-l.d.Port.wake:
	default:
	}
	seq, port, _ := l.d.Port.latest()
	l.setState(Binding)

	r := responder.New(l.d.Handle, port, responder.Options{
		BindAddress: l.d.BindAddress,
		RecvTimeout: l.d.RecvTimeout,
		Logger:      l.logger,
	})
	l.served = seq

	if r.Valid() {
		l.resp = r
		l.attempt = 0
		l.breaker.Reset()
		l.d.Port.setBound(r.BoundPort())
		l.d.Port.ack(seq)
		l.d.Metrics.SetBoundPort(r.BoundPort())
		l.setState(Listening)
		l.logger.Info("listening on %s", util.Endpoint(l.d.BindAddress, r.BoundPort()))
		return true
	}

	l.attempt++
	l.d.Port.setBound(0)
	l.d.Port.ack(seq)
	l.d.Metrics.SetBoundPort(0)
	l.d.Metrics.BindFailed()
	if l.attempt == 1 || l.attempt%10 == 0 {
		r.ReportErr(fmt.Sprintf("could not bind (attempt %d)", l.attempt))
	}
	l.setState(Idle)

	wait := l.d.Backoff.Delay(l.attempt)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.d.Port.wake:
		l.attempt = 0
	case <-l.stop:
		return false
	case <-ctx.Done():
		return false
	}
	return true
}

// rebind serves a pending request.  Asking for the port already bound
// keeps the socket; only Restart forces a rebuild in that case.
func (l *Loop) rebind() {
	seq, port, force := l.d.Port.latest()
	if !force && port != 0 && port == l.resp.BoundPort() {
		l.served = seq
		l.d.Port.ack(seq)
		l.logger.Verbose("already bound to %d", port)
		return
	}

	l.setState(Rebinding)
	l.logger.Info("rebinding from %d to %s", l.resp.BoundPort(), errors.PortLabel(port))
	l.closeResponder()
	l.d.Metrics.Rebind()
}

// serve waits for one request and answers it.
func (l *Loop) serve(buf []byte) {
	n, err := l.resp.Receive(buf)
	switch {
	case errors.Is(err, errors.ErrRecvTimeout):
		l.breaker.Record(nil)
		return
	case err != nil:
		l.d.Metrics.RecordError(err.Error())
		l.breaker.Record(err)
		l.logger.Warn("receive failed: %v", err)
		if l.breaker.Tripped() {
			l.logger.Error("%d consecutive receive errors, rebuilding socket on %s",
				l.breaker.Failures(), errors.PortLabel(l.d.Port.Requested()))
			l.closeResponder()
			l.breaker.Reset()
			l.d.Metrics.Rebind()
		}
		return
	}
	l.breaker.Record(nil)

	msg := string(buf[:n])
	l.d.Metrics.MessageReceived(n)

	if _, err := l.resp.Send(l.d.Reply); err != nil {
		l.d.Metrics.RecordError(err.Error())
		l.logger.Warn("reply failed: %v", err)
	} else {
		l.d.Metrics.ReplySent()
	}

	l.dispatch(msg)
}

// dispatch classifies msg and queues it.
func (l *Loop) dispatch(msg string) {
	routed := l.d.Router.Route(msg)
	switch routed.Kind {
	case router.KindTrigger:
		l.seq++
		ev := routed.Trigger
		ev.Seq = l.seq
		l.d.Triggers.Push(ev)
		l.d.Metrics.TriggerQueued()
		l.logger.Debug("trigger line=%d on=%t seq=%d", ev.Channel, ev.On, ev.Seq)
	case router.KindCommand:
		l.d.Commands.Push(routed.Message)
		l.d.Metrics.CommandQueued()
		l.logger.Debug("command %s", routed.Message.Verb)
	default:
		l.d.Metrics.MessageDropped()
		l.logger.Warn("%v", routed.Err)
	}
}

func (l *Loop) closeResponder() {
	if l.resp == nil {
		return
	}
	if err := l.resp.Close(); err != nil {
		l.logger.Warn("closing socket: %v", err)
	}
	l.resp = nil
	l.d.Port.setBound(0)
	l.d.Metrics.SetBoundPort(0)
}

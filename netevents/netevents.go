// Package netevents is the host-facing surface of the event bridge.
//
// A Processor ties the pieces together: a listener goroutine that
// answers peer requests and queues what they ask for, and an emission
// stage the host drives once per processing cycle.  The host talks to
// it from two sides:
//
//   - control side: Start, Stop, SetListeningPort, RestartConnection,
//     PortString, SavePort, LoadPort
//   - processing side: UpdateLines and Process, never blocking
package netevents

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"evbridge/internal/control"
	"evbridge/internal/emission"
	"evbridge/internal/errors"
	"evbridge/internal/listener"
	"evbridge/internal/metrics"
	"evbridge/internal/queue"
	"evbridge/internal/responder"
	"evbridge/internal/retry"
	"evbridge/internal/router"
	"evbridge/internal/zmqctx"
	"evbridge/util"
)

// DefaultSyncTimeout bounds a synchronous port change.
const DefaultSyncTimeout = 2 * time.Second

// Options configures a Processor.  The zero value listens on any free
// port on every interface.
type Options struct {
	Port            uint16
	BindAddress     string
	RecvTimeout     time.Duration
	SyncTimeout     time.Duration
	Reply           string
	MaxMessage      int
	LineNames       map[string]int // trigger channel aliases
	BreakerFailures int
	Backoff         *retry.Backoff
	Hooks           control.SessionHooks
	Logger          *util.Logger
	Metrics         *metrics.Collector
}

// Processor is one bridge instance.
type Processor struct {
	opts     Options
	handle   *zmqctx.Handle
	port     *listener.PortState
	router   *router.Router
	commands *queue.FIFO[router.Message]
	triggers *queue.FIFO[router.TriggerEvent]
	stage    *emission.Stage
	logger   *util.Logger

	mu     sync.Mutex
	loop   *listener.Loop
	closed bool
}

// New acquires the shared socket context from provider and returns a
// stopped Processor.  A context that cannot be created is returned as
// *errors.ContextError; networking is unavailable in that case.
func New(provider *zmqctx.Provider, opts Options) (*Processor, error) {
	h, err := provider.Acquire()
	if err != nil {
		return nil, fmt.Errorf("netevents: %w", err)
	}
	if opts.RecvTimeout <= 0 {
		opts.RecvTimeout = responder.DefaultRecvTimeout
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.Nop()
	}

	p := &Processor{
		opts:     opts,
		handle:   h,
		port:     listener.NewPortState(opts.Port),
		router:   router.New(opts.LineNames),
		commands: queue.New[router.Message](16),
		triggers: queue.New[router.TriggerEvent](64),
		logger:   opts.Logger,
	}
	p.stage = emission.New(emission.Deps{
		Commands: p.commands,
		Triggers: p.triggers,
		Machine:  control.NewMachine(opts.Hooks),
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	return p, nil
}

// ── lifecycle ────────────────────────────────────────────────────────

// Start launches the listener on the requested port.  Starting a
// running Processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("netevents: %w", errors.ErrStopped)
	}
	if p.loop != nil {
		select {
		case <-p.loop.Done():
			// exited on its own (ctx cancelled) or after a late stop
			p.loop = nil
		default:
			if p.loop.StopRequested() {
				return fmt.Errorf("netevents: previous listener still running: %w", errors.ErrStopTimeout)
			}
			return nil
		}
	}
	loop, err := listener.New(listener.Deps{
		Handle:          p.handle,
		Port:            p.port,
		Router:          p.router,
		Commands:        p.commands,
		Triggers:        p.triggers,
		Logger:          p.logger,
		Metrics:         p.opts.Metrics,
		BindAddress:     p.opts.BindAddress,
		RecvTimeout:     p.opts.RecvTimeout,
		Reply:           p.opts.Reply,
		MaxMessage:      p.opts.MaxMessage,
		Backoff:         p.opts.Backoff,
		BreakerFailures: p.opts.BreakerFailures,
	})
	if err != nil {
		return err
	}
	if err := loop.Start(ctx); err != nil {
		return err
	}
	p.loop = loop
	return nil
}

// Stop ends the listener and closes its socket.  It returns within
// about one receive timeout.  The Processor can be started again once
// Stop has returned nil; after a timeout the old listener is kept, and
// Start refuses until a later Stop sees it exit.
func (p *Processor) Stop() error {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()

	if loop == nil {
		return nil
	}
	err := loop.Stop(2*p.opts.RecvTimeout + 250*time.Millisecond)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.loop == loop {
		p.loop = nil
	}
	p.mu.Unlock()
	return nil
}

// Close stops the listener and releases the socket context handle.
func (p *Processor) Close() error {
	err := p.Stop()
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if already {
		return err
	}
	return errors.Join(err, p.handle.Release())
}

// Running reports whether the listener goroutine is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()
	if loop == nil {
		return false
	}
	select {
	case <-loop.Done():
		return false
	default:
		return true
	}
}

// State returns the listener state, or listener.Stopped when not
// running.
func (p *Processor) State() listener.State {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()
	if loop == nil {
		return listener.Stopped
	}
	return loop.State()
}

// ── control side ─────────────────────────────────────────────────────

// SetListeningPort asks the listener to move to port (0 = any free
// port).  Without synchronous it returns at once and the outcome shows
// up later in PortString.  With synchronous it waits, up to the sync
// timeout, for the listener to acknowledge; a failed bind returns an
// error wrapping errors.ErrNotBound.  A stopped Processor only records
// the request for the next Start.
func (p *Processor) SetListeningPort(port uint16, synchronous bool) error {
	seq := p.port.RequestPort(port)
	p.logger.Verbose("port request %s (seq %d)", errors.PortLabel(port), seq)
	if !synchronous || !p.Running() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.SyncTimeout)
	defer cancel()
	_, err := p.port.WaitApplied(ctx, seq)
	return err
}

// RestartConnection rebuilds the socket on the last requested port.
func (p *Processor) RestartConnection() error {
	if !p.Running() {
		return fmt.Errorf("netevents: restart: %w", errors.ErrStopped)
	}
	p.port.Restart()
	return nil
}

// BoundPort returns the bound port, 0 when not connected.
func (p *Processor) BoundPort() uint16 { return p.port.Bound() }

// RequestedPort returns the last requested port.
func (p *Processor) RequestedPort() uint16 { return p.port.Requested() }

// PortString renders the bound port for display.
func (p *Processor) PortString() string { return util.PortString(p.port.Bound()) }

// SavePort returns the requested port as it should be persisted: "*"
// for any free port, otherwise the decimal port.
func (p *Processor) SavePort() string {
	port := p.port.Requested()
	if port == 0 {
		return "*"
	}
	return strconv.Itoa(int(port))
}

// LoadPort restores a value produced by SavePort and requests that
// port asynchronously.
func (p *Processor) LoadPort(s string) error {
	port, err := util.ParsePort(s)
	if err != nil {
		return fmt.Errorf("netevents: %w: %v", errors.ErrInvalidPort, err)
	}
	return p.SetListeningPort(port, false)
}

// ── processing side ──────────────────────────────────────────────────

// UpdateLines replaces the output line set.  Call it from the
// processing goroutine, between cycles.
func (p *Processor) UpdateLines(lines []emission.Line) { p.stage.UpdateLines(lines) }

// Process emits this cycle's events into sink.  It never blocks.
func (p *Processor) Process(c emission.Cycle, sink emission.Sink) { p.stage.Process(c, sink) }

// Conditions exposes the condition tables to the processing goroutine.
func (p *Processor) Conditions() *control.Tables { return p.stage.Machine().Tables() }

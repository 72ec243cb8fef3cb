package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"evbridge/config"
	"evbridge/internal/control"
	"evbridge/internal/emission"
	"evbridge/internal/router"
	"evbridge/internal/zmqctx"
	"evbridge/netevents"
	"evbridge/util"
)

// ListenMode runs the bridge against a simulated processing clock.
// Every emitted event is printed, and stdin accepts console commands:
//
//	port N | port *   move the listener (waits for the outcome)
//	restart           rebuild the socket on the same port
//	status            print the listener state and counters
//	metrics           dump every metric in Prometheus text format
//	quit              stop
type ListenMode struct {
	Provider *zmqctx.Provider
	Options  netevents.Options
	Lines    []emission.Line

	BlockSize int
	Cycle     time.Duration // wall-clock length of one block

	SettingsPath string // persist the requested port here on exit
	LineNames    map[string]int
	Logger       *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer

	// Ready, when set, is called once the processor has started.
	Ready func(*netevents.Processor)
}

func (m *ListenMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ListenMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// errQuit ends the run group without reporting an error.
var errQuit = fmt.Errorf("quit")

// Run starts the processor and drives it until ctx is cancelled or
// the console says quit.
func (m *ListenMode) Run(ctx context.Context) error {
	out := &lockedWriter{w: m.stdout()}

	opts := m.Options
	if opts.Hooks == nil {
		opts.Hooks = control.SessionFunc(func(v router.Verb, _ router.Message) {
			fmt.Fprintf(out, "session %s\n", v)
		})
	}
	p, err := netevents.New(m.Provider, opts)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	p.UpdateLines(m.Lines)
	if err := p.Start(ctx); err != nil {
		return err
	}
	m.Logger.Info("bridge started, %d lines, port %s requested", len(m.Lines), p.SavePort())
	if m.Ready != nil {
		m.Ready(p)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.clock(gctx, p, out) })
	g.Go(func() error { return m.console(gctx, p, out) })

	err = g.Wait()
	if err == errQuit || ctx.Err() != nil {
		err = nil
	}

	if stopErr := p.Stop(); stopErr != nil {
		m.Logger.Warn("%v", stopErr)
	}
	if saveErr := m.saveSettings(p); saveErr != nil {
		m.Logger.Warn("%v", saveErr)
	}
	return err
}

// ── processing clock ─────────────────────────────────────────────────

// clock plays the processing pipeline: one Process call per block,
// paced in wall-clock time.
func (m *ListenMode) clock(ctx context.Context, p *netevents.Processor, out io.Writer) error {
	period := m.Cycle
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	block := m.BlockSize
	if block <= 0 {
		block = config.DefaultBlockSize
	}

	sink := &printSink{w: out}
	t := time.NewTicker(period)
	defer t.Stop()

	var start int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Process(emission.Cycle{Start: start, Length: block}, sink)
			start += int64(block)
		}
	}
}

// printSink writes each emitted event as one line.
type printSink struct {
	w io.Writer
}

func (s *printSink) Trigger(t emission.Trigger) {
	edge := "off"
	if t.On {
		edge = "on"
	}
	cond := "-"
	if t.Condition != control.NoStimClass {
		cond = fmt.Sprintf("%d:%s", t.Condition, t.ConditionName)
	}
	fmt.Fprintf(s.w, "trigger sample=%d line=%d(%s) %s condition=%s\n",
		t.Sample, t.Line, t.LineName, edge, cond)
}

func (s *printSink) Text(t emission.Text) {
	fmt.Fprintf(s.w, "text sample=%d %q\n", t.Sample, t.Message)
}

// ── console ──────────────────────────────────────────────────────────

// console reads commands from stdin.  The reader goroutine is not part
// of the group: a blocked read cannot be interrupted, so it is left to
// end with the process.
func (m *ListenMode) console(ctx context.Context, p *netevents.Processor, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(m.stdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep serving until cancelled
				<-ctx.Done()
				return ctx.Err()
			}
			if err := m.command(p, out, line); err != nil {
				return err
			}
		}
	}
}

func (m *ListenMode) command(p *netevents.Processor, out io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "port":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: port N | port *")
			return nil
		}
		port, err := config.ParsePortFlag(fields[1])
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		if err := p.SetListeningPort(port, true); err != nil {
			fmt.Fprintf(out, "port %s: %v\n", fields[1], err)
			return nil
		}
		fmt.Fprintf(out, "listening on %s\n", p.PortString())
	case "restart":
		if err := p.RestartConnection(); err != nil {
			fmt.Fprintln(out, err)
		}
	case "status":
		snap := m.Options.Metrics.Snapshot()
		fmt.Fprintf(out, "state=%s port=%s requested=%s received=%d dropped=%d\n",
			p.State(), p.PortString(), p.SavePort(), snap.MessagesReceived, snap.MessagesDropped)
	case "metrics":
		if m.Options.Metrics == nil {
			fmt.Fprintln(out, "metrics disabled")
			return nil
		}
		if err := m.Options.Metrics.WriteText(out); err != nil {
			fmt.Fprintln(out, err)
		}
	case "quit", "exit":
		return errQuit
	default:
		fmt.Fprintf(out, "unknown command %q\n", fields[0])
	}
	return nil
}

func (m *ListenMode) saveSettings(p *netevents.Processor) error {
	if m.SettingsPath == "" {
		return nil
	}
	s := &config.Settings{Port: p.SavePort(), LineNames: m.LineNames}
	if err := config.SaveSettings(m.SettingsPath, s); err != nil {
		return err
	}
	m.Logger.Verbose("saved port %s to %s", s.Port, m.SettingsPath)
	return nil
}

// lockedWriter serialises writes from the clock and console.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

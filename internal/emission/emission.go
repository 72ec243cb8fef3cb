// Package emission turns queued commands and trigger events into
// timestamped output, once per processing cycle.
//
// [Stage.Process] runs on the processing goroutine and never blocks:
// it drains both queues, applies every command, then emits every
// trigger at the first sample of the cycle.  Edges therefore have one
// cycle of resolution.
package emission

import (
	"time"

	"golang.org/x/time/rate"

	"evbridge/internal/control"
	"evbridge/internal/metrics"
	"evbridge/internal/queue"
	"evbridge/internal/router"
	"evbridge/util"
)

// Cycle is one block of the processing pipeline.
type Cycle struct {
	Start  int64 // absolute index of the first sample
	Length int
}

// Line is one addressable trigger output.
type Line struct {
	Name string
}

// Trigger is an emitted edge on one line.
type Trigger struct {
	Line          int
	LineName      string
	Sample        int64
	On            bool
	Condition     int // control.NoStimClass when none is selected
	ConditionName string
}

// Text is an emitted free-text event.
type Text struct {
	Sample  int64
	Message string
}

// Sink receives a cycle's output.  Implementations are called on the
// processing goroutine and must not block.
type Sink interface {
	Trigger(Trigger)
	Text(Text)
}

// Buffer is a Sink that collects output in memory.
type Buffer struct {
	Triggers []Trigger
	Texts    []Text
}

// Trigger implements Sink.
func (b *Buffer) Trigger(t Trigger) { b.Triggers = append(b.Triggers, t) }

// Text implements Sink.
func (b *Buffer) Text(t Text) { b.Texts = append(b.Texts, t) }

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() {
	b.Triggers = b.Triggers[:0]
	b.Texts = b.Texts[:0]
}

// Deps wires a Stage to its queues.
type Deps struct {
	Commands *queue.FIFO[router.Message]
	Triggers *queue.FIFO[router.TriggerEvent]
	Machine  *control.Machine
	Logger   *util.Logger
	Metrics  *metrics.Collector
	// WarnEvery limits drop warnings to one per interval, with a burst
	// of WarnBurst.  Zero values mean one per second, burst 5.
	WarnEvery time.Duration
	WarnBurst int
}

// Stage is the per-cycle consumer.  All methods must be called from
// the processing goroutine.
type Stage struct {
	commands *queue.FIFO[router.Message]
	triggers *queue.FIFO[router.TriggerEvent]
	machine  *control.Machine
	logger   *util.Logger
	metrics  *metrics.Collector

	lines      []Line
	cmdBuf     []router.Message
	trigBuf    []router.TriggerEvent
	warn       *rate.Limiter
	suppressed int
}

// New returns a Stage with no output lines.
func New(d Deps) *Stage {
	every := d.WarnEvery
	if every <= 0 {
		every = time.Second
	}
	burst := d.WarnBurst
	if burst <= 0 {
		burst = 5
	}
	logger := d.Logger
	if logger == nil {
		logger = util.Nop()
	}
	machine := d.Machine
	if machine == nil {
		machine = control.NewMachine(nil)
	}
	return &Stage{
		commands: d.Commands,
		triggers: d.Triggers,
		machine:  machine,
		logger:   logger.With("component", "emission"),
		metrics:  d.Metrics,
		warn:     rate.NewLimiter(rate.Every(every), burst),
	}
}

// UpdateLines replaces the output line set.
func (s *Stage) UpdateLines(lines []Line) {
	s.lines = append(s.lines[:0], lines...)
}

// Lines returns the number of output lines.
func (s *Stage) Lines() int { return len(s.lines) }

// Machine returns the control state the stage applies commands to.
func (s *Stage) Machine() *control.Machine { return s.machine }

// Process drains both queues into c.  Commands are applied before any
// trigger is emitted, so a trigger sees the condition selected by a
// command that arrived in the same cycle.
func (s *Stage) Process(c Cycle, sink Sink) {
	if s.commands != nil {
		s.cmdBuf = s.commands.DrainInto(s.cmdBuf)
	}
	if s.triggers != nil {
		s.trigBuf = s.triggers.DrainInto(s.trigBuf)
	}
	s.metrics.Drained(len(s.cmdBuf), len(s.trigBuf))

	for i := range s.cmdBuf {
		out := s.machine.Apply(s.cmdBuf[i])
		switch out.Kind {
		case control.Text:
			sink.Text(Text{Sample: c.Start, Message: out.Text})
			s.metrics.TextEmitted()
		case control.Rejected:
			s.warnf("command %s ignored: %v", out.Verb, out.Err)
		default:
			if out.Err != nil {
				s.warnf("command %s: %v", out.Verb, out.Err)
			}
			s.logger.Debug("command %s %s", out.Verb, out.Kind)
		}
	}

	cond, condName := s.machine.Tables().Current()
	for _, ev := range s.trigBuf {
		if ev.Channel < 0 || ev.Channel >= len(s.lines) {
			s.metrics.TriggerDropped()
			s.warnf("trigger on line %d dropped: %d lines configured", ev.Channel, len(s.lines))
			continue
		}
		sink.Trigger(Trigger{
			Line:          ev.Channel,
			LineName:      s.lines[ev.Channel].Name,
			Sample:        c.Start,
			On:            ev.On,
			Condition:     cond,
			ConditionName: condName,
		})
		s.metrics.TriggerEmitted()
	}
}

// warnf logs through the rate limiter and reports how many warnings
// were suppressed since the last one that got through.
func (s *Stage) warnf(format string, args ...interface{}) {
	if !s.warn.Allow() {
		s.suppressed++
		return
	}
	if s.suppressed > 0 {
		s.logger.Warn("%d similar warnings suppressed", s.suppressed)
		s.suppressed = 0
	}
	s.logger.Warn(format, args...)
}

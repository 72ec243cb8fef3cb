// Package metrics provides counters and gauges for tracking runtime
// statistics of the event bridge.
//
// Every value lives in a private Prometheus registry; snapshots and the
// text dump are gathered from it.  All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "evbridge"

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// Collector tracks runtime metrics for one bridge instance.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	registry *prometheus.Registry

	messagesReceived prometheus.Counter
	bytesIn          prometheus.Counter
	repliesSent      prometheus.Counter
	commandsQueued   prometheus.Counter
	triggersQueued   prometheus.Counter
	messagesDropped  prometheus.Counter
	triggersEmitted  prometheus.Counter
	triggersDropped  prometheus.Counter
	textEmitted      prometheus.Counter
	bindFailures     prometheus.Counter
	rebinds          prometheus.Counter
	errorsTotal      prometheus.Counter

	boundPort     prometheus.Gauge
	commandsDepth prometheus.Gauge
	triggersDepth prometheus.Gauge

	mu           sync.RWMutex
	startTime    time.Time
	lastMessage  time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	c := &Collector{
		registry:         prometheus.NewRegistry(),
		messagesReceived: newCounter("listener", "messages_received_total", "Requests received on the reply socket"),
		bytesIn:          newCounter("listener", "bytes_received_total", "Bytes received on the reply socket"),
		repliesSent:      newCounter("listener", "replies_sent_total", "Acknowledgements sent back to the peer"),
		commandsQueued:   newCounter("listener", "commands_queued_total", "Control messages handed to the processing side"),
		triggersQueued:   newCounter("listener", "triggers_queued_total", "Trigger events handed to the processing side"),
		messagesDropped:  newCounter("listener", "messages_dropped_total", "Malformed messages dropped by the router"),
		bindFailures:     newCounter("listener", "bind_failures_total", "Failed attempts to bind the reply socket"),
		rebinds:          newCounter("listener", "rebinds_total", "Responder rebuilds after a port change or restart"),
		errorsTotal:      newCounter("listener", "errors_total", "Socket errors on receive or send"),
		triggersEmitted:  newCounter("emission", "triggers_emitted_total", "Trigger events emitted into processing cycles"),
		triggersDropped:  newCounter("emission", "triggers_dropped_total", "Trigger events dropped for an out-of-range line"),
		textEmitted:      newCounter("emission", "text_emitted_total", "Unrecognised messages emitted as text events"),
		boundPort:        newGauge("listener", "bound_port", "Port the reply socket is bound to, 0 when unbound"),
		commandsDepth:    newGauge("emission", "command_queue_depth", "Control messages drained in the last cycle"),
		triggersDepth:    newGauge("emission", "trigger_queue_depth", "Trigger events drained in the last cycle"),
		startTime:        time.Now(),
	}
	for _, ctr := range []prometheus.Counter{
		c.messagesReceived, c.bytesIn, c.repliesSent, c.commandsQueued,
		c.triggersQueued, c.messagesDropped, c.bindFailures, c.rebinds,
		c.errorsTotal, c.triggersEmitted, c.triggersDropped, c.textEmitted,
	} {
		c.registry.MustRegister(ctr)
	}
	for _, g := range []prometheus.Gauge{c.boundPort, c.commandsDepth, c.triggersDepth} {
		c.registry.MustRegister(g)
	}
	return c
}

// Registry returns the Prometheus registry the collector exports to.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ── Network side ─────────────────────────────────────────────────────

// MessageReceived records one request of n bytes.
func (c *Collector) MessageReceived(n int) {
	if c == nil {
		return
	}
	c.messagesReceived.Inc()
	c.bytesIn.Add(float64(n))
	c.mu.Lock()
	c.lastMessage = time.Now()
	c.mu.Unlock()
}

// ReplySent records one acknowledgement.
func (c *Collector) ReplySent() {
	if c == nil {
		return
	}
	c.repliesSent.Inc()
}

// CommandQueued records a control message pushed to the command queue.
func (c *Collector) CommandQueued() {
	if c == nil {
		return
	}
	c.commandsQueued.Inc()
}

// TriggerQueued records a trigger event pushed to the trigger queue.
func (c *Collector) TriggerQueued() {
	if c == nil {
		return
	}
	c.triggersQueued.Inc()
}

// MessageDropped records a malformed message.
func (c *Collector) MessageDropped() {
	if c == nil {
		return
	}
	c.messagesDropped.Inc()
}

// BindFailed records a failed bind attempt.
func (c *Collector) BindFailed() {
	if c == nil {
		return
	}
	c.bindFailures.Inc()
}

// Rebind records a responder rebuild.
func (c *Collector) Rebind() {
	if c == nil {
		return
	}
	c.rebinds.Inc()
}

// SetBoundPort publishes the currently bound port (0 = unbound).
func (c *Collector) SetBoundPort(port uint16) {
	if c == nil {
		return
	}
	c.boundPort.Set(float64(port))
}

// ── Processing side ──────────────────────────────────────────────────

// TriggerEmitted records a trigger written into a cycle.
func (c *Collector) TriggerEmitted() {
	if c == nil {
		return
	}
	c.triggersEmitted.Inc()
}

// TriggerDropped records a trigger discarded at emission time.
func (c *Collector) TriggerDropped() {
	if c == nil {
		return
	}
	c.triggersDropped.Inc()
}

// TextEmitted records a text event written into a cycle.
func (c *Collector) TextEmitted() {
	if c == nil {
		return
	}
	c.textEmitted.Inc()
}

// Drained records how many items one cycle took off each queue.
func (c *Collector) Drained(commands, triggers int) {
	if c == nil {
		return
	}
	c.commandsDepth.Set(float64(commands))
	c.triggersDepth.Set(float64(triggers))
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Inc()
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return int64(c.gather()[fqName("listener", "errors_total")])
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	BoundPort        int64  `json:"bound_port"`
	MessagesReceived int64  `json:"messages_received"`
	BytesIn          int64  `json:"bytes_in"`
	RepliesSent      int64  `json:"replies_sent"`
	CommandsQueued   int64  `json:"commands_queued"`
	TriggersQueued   int64  `json:"triggers_queued"`
	MessagesDropped  int64  `json:"messages_dropped"`
	TriggersEmitted  int64  `json:"triggers_emitted"`
	TriggersDropped  int64  `json:"triggers_dropped"`
	TextEmitted      int64  `json:"text_emitted"`
	BindFailures     int64  `json:"bind_failures"`
	Rebinds          int64  `json:"rebinds"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastMessage      string `json:"last_message,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := c.gather()
	val := func(subsystem, name string) int64 { return int64(v[fqName(subsystem, name)]) }
	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		BoundPort:        val("listener", "bound_port"),
		MessagesReceived: val("listener", "messages_received_total"),
		BytesIn:          val("listener", "bytes_received_total"),
		RepliesSent:      val("listener", "replies_sent_total"),
		CommandsQueued:   val("listener", "commands_queued_total"),
		TriggersQueued:   val("listener", "triggers_queued_total"),
		MessagesDropped:  val("listener", "messages_dropped_total"),
		TriggersEmitted:  val("emission", "triggers_emitted_total"),
		TriggersDropped:  val("emission", "triggers_dropped_total"),
		TextEmitted:      val("emission", "text_emitted_total"),
		BindFailures:     val("listener", "bind_failures_total"),
		Rebinds:          val("listener", "rebinds_total"),
		ErrorsTotal:      val("listener", "errors_total"),
	}
	if !c.lastMessage.IsZero() {
		s.LastMessage = c.lastMessage.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// WriteText writes every metric in the Prometheus text exposition
// format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// gather reads the registry into fully qualified name → value.  Every
// family here holds one unlabelled series.
func (c *Collector) gather() map[string]float64 {
	out := make(map[string]float64)
	mfs, err := c.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func fqName(subsystem, name string) string {
	return prometheus.BuildFQName(namespace, subsystem, name)
}

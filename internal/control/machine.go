package control

import (
	"fmt"
	"strconv"
	"strings"

	"evbridge/internal/errors"
	"evbridge/internal/router"
)

// SessionHooks receives the acquisition and recording verbs.  The host
// implements it; the bridge itself has no acquisition state.
type SessionHooks interface {
	Session(verb router.Verb, msg router.Message)
}

// SessionFunc adapts a function to SessionHooks.
type SessionFunc func(verb router.Verb, msg router.Message)

// Session implements SessionHooks.
func (f SessionFunc) Session(verb router.Verb, msg router.Message) { f(verb, msg) }

// OutcomeKind says what applying a command did.
type OutcomeKind int

const (
	// Applied means the tables changed.
	Applied OutcomeKind = iota
	// Forwarded means a session verb went to the host hooks.
	Forwarded
	// Text means an unrecognised message the host should see as text.
	Text
	// Rejected means the command was ignored; Err says why.
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Forwarded:
		return "forwarded"
	case Text:
		return "text"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the result of [Machine.Apply].
type Outcome struct {
	Kind OutcomeKind
	Verb router.Verb
	Text string // raw message, for Text outcomes
	Err  error  // Rejected, or Applied with some input ignored
}

// Machine applies control commands to its Tables.
type Machine struct {
	tables *Tables
	hooks  SessionHooks
}

// NewMachine returns a Machine over fresh tables.  hooks may be nil.
func NewMachine(hooks SessionHooks) *Machine {
	return &Machine{tables: NewTables(), hooks: hooks}
}

// Tables exposes the state for reading.
func (m *Machine) Tables() *Tables { return m.tables }

// Apply executes one command.
func (m *Machine) Apply(msg router.Message) Outcome {
	out := Outcome{Kind: Applied, Verb: msg.Verb}

	switch msg.Verb {
	case router.VerbStartAcquisition, router.VerbStopAcquisition,
		router.VerbStartRecord, router.VerbStopRecord:
		out.Kind = Forwarded
		if m.hooks != nil {
			m.hooks.Session(msg.Verb, msg)
		}

	case router.VerbNewDesign:
		m.tables.Clear()
		name, _ := msg.Param("Name", "Design")
		if name == "" && len(msg.Flags) > 0 {
			name = strings.Join(msg.Flags, " ")
		}
		m.tables.SetDesign(name)

	case router.VerbClearDesign:
		m.tables.Clear()

	case router.VerbAddCondition:
		name, ok := msg.Param("Name")
		if !ok || name == "" {
			return reject(out, msg, "condition without name")
		}
		id, _ := msg.Param("ImageID", "Image")
		m.tables.AddCondition(name, id)

	case router.VerbStimClasses:
		classes, err := parseClasses(msg)
		if err != nil {
			return reject(out, msg, err.Error())
		}
		if bad := m.tables.SetStimClasses(classes); len(bad) > 0 {
			out.Err = errors.Malformed(msg.Raw, fmt.Sprintf("unknown condition indices %v", bad))
		}

	case router.VerbCondition:
		idx, err := m.resolveCondition(msg)
		if err != nil {
			return reject(out, msg, err.Error())
		}
		if !m.tables.SelectCondition(idx) {
			return reject(out, msg, fmt.Sprintf("condition %d not selectable", idx))
		}

	case router.VerbTTL:
		return reject(out, msg, "trigger routed as a command")

	default:
		out.Kind = Text
		out.Text = msg.Raw
	}
	return out
}

func (m *Machine) resolveCondition(msg router.Message) (int, error) {
	if name, ok := msg.Param("Name"); ok {
		idx, found := m.tables.ConditionIndex(name)
		if !found {
			return 0, fmt.Errorf("unknown condition %q", name)
		}
		return idx, nil
	}
	s, ok := msg.Param("Index")
	if !ok && len(msg.Flags) == 1 {
		s, ok = msg.Flags[0], true
	}
	if !ok {
		return 0, fmt.Errorf("condition without name or index")
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid condition index %q", s)
	}
	return idx, nil
}

// parseClasses reads "Classes=0,2,5" or bare index flags.
func parseClasses(msg router.Message) ([]int, error) {
	var parts []string
	if s, ok := msg.Param("Classes"); ok {
		parts = strings.Split(s, ",")
	} else {
		parts = msg.Flags
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid class %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func reject(out Outcome, msg router.Message, reason string) Outcome {
	out.Kind = Rejected
	out.Err = errors.Malformed(msg.Raw, reason)
	return out
}

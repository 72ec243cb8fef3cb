// Package router parses the text messages sent by the remote peer and
// classifies each one as a control command or a trigger event.
//
// The grammar is `VERB [key=value | flag]*`.  Tokens are separated by
// whitespace; a token containing '=' is split at its first '=', so
// values may themselves contain '='.  Parsing is pure and runs on the
// network goroutine, leaving the processing goroutine nothing to parse.
package router

import (
	"strconv"
	"strings"

	"evbridge/internal/errors"
)

// ── Verbs ────────────────────────────────────────────────────────────

// Verb is the closed set of recognised message verbs.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbStartAcquisition
	VerbStopAcquisition
	VerbStartRecord
	VerbStopRecord
	VerbNewDesign
	VerbClearDesign
	VerbAddCondition
	VerbStimClasses
	VerbCondition
	VerbTTL
)

var verbNames = [...]string{
	VerbUnknown:          "Unknown",
	VerbStartAcquisition: "StartAcquisition",
	VerbStopAcquisition:  "StopAcquisition",
	VerbStartRecord:      "StartRecord",
	VerbStopRecord:       "StopRecord",
	VerbNewDesign:        "NewDesign",
	VerbClearDesign:      "ClearDesign",
	VerbAddCondition:     "AddCondition",
	VerbStimClasses:      "StimClasses",
	VerbCondition:        "Condition",
	VerbTTL:              "TTL",
}

var verbLookup = func() map[string]Verb {
	m := make(map[string]Verb, len(verbNames))
	for v, name := range verbNames {
		if Verb(v) != VerbUnknown {
			m[strings.ToLower(name)] = Verb(v)
		}
	}
	return m
}()

func (v Verb) String() string {
	if v < 0 || int(v) >= len(verbNames) {
		return "Unknown"
	}
	return verbNames[v]
}

// ParseVerb matches s case-insensitively against the verb set.
func ParseVerb(s string) Verb {
	return verbLookup[strings.ToLower(s)]
}

// Verbs returns every recognised verb in declaration order.
func Verbs() []Verb {
	out := make([]Verb, 0, len(verbNames)-1)
	for v := VerbUnknown + 1; int(v) < len(verbNames); v++ {
		out = append(out, v)
	}
	return out
}

// ── Messages ─────────────────────────────────────────────────────────

// Message is one parsed request.
type Message struct {
	Verb   Verb
	Name   string            // verb token as received; "" if the message starts with a pair
	Params map[string]string // key=value pairs; keys keep their case, unique ignoring case
	Flags  []string          // tokens without '=', in order, verb excluded
	Raw    string
}

// Param returns the first of keys present in Params, compared
// case-insensitively.
func (m Message) Param(keys ...string) (string, bool) {
	for _, want := range keys {
		for k, v := range m.Params {
			if strings.EqualFold(k, want) {
				return v, true
			}
		}
	}
	return "", false
}

// ParsePairs splits s on whitespace into key/value pairs and flags.
// Later duplicates of a key overwrite earlier ones.
func ParsePairs(s string) (map[string]string, []string) {
	pairs := make(map[string]string)
	var flags []string
	for _, tok := range strings.Fields(s) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			pairs[k] = v
			continue
		}
		flags = append(flags, tok)
	}
	return pairs, flags
}

// Parse tokenises s.  A leading token without '=' is the verb; if it is
// not one of the known verbs the message carries VerbUnknown.  Keys
// repeated in any case collapse to the last occurrence.
func Parse(s string) Message {
	msg := Message{Raw: s}
	_, flags := ParsePairs(s)
	msg.Params = foldPairs(s)

	fields := strings.Fields(s)
	if len(fields) > 0 && !strings.Contains(fields[0], "=") {
		msg.Name = fields[0]
		msg.Verb = ParseVerb(fields[0])
		flags = flags[1:]
	}
	if len(flags) > 0 {
		msg.Flags = flags
	}
	return msg
}

// foldPairs collects the pairs of s in token order, keeping only the
// last spelling of each key compared case-insensitively.
func foldPairs(s string) map[string]string {
	pairs := make(map[string]string)
	seen := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		lower := strings.ToLower(k)
		if prev, dup := seen[lower]; dup {
			delete(pairs, prev)
		}
		seen[lower] = k
		pairs[k] = v
	}
	return pairs
}

// ── Routing ──────────────────────────────────────────────────────────

// TriggerEvent asks the emission stage to raise or drop one output
// line.  Channel is a 0-based index into the host's line set.
type TriggerEvent struct {
	Channel int
	On      bool
	Seq     uint64
}

// Kind tells the listener which queue a message belongs in.
type Kind int

const (
	KindCommand Kind = iota
	KindTrigger
	KindDropped
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindTrigger:
		return "trigger"
	case KindDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Routed is the classification of one message.
type Routed struct {
	Kind    Kind
	Message Message
	Trigger TriggerEvent         // valid when Kind == KindTrigger
	Err     *errors.MessageError // set when Kind == KindDropped
}

// Router classifies messages.  Its alias table is fixed at
// construction, so one Router may be shared freely.
type Router struct {
	lines map[string]int
}

// New returns a Router that resolves trigger channel names through
// lines (name → 0-based index).  Names match case-insensitively.
func New(lines map[string]int) *Router {
	r := &Router{lines: make(map[string]int, len(lines))}
	for name, idx := range lines {
		r.lines[strings.ToLower(name)] = idx
	}
	return r
}

// Route parses and classifies s.
func (r *Router) Route(s string) Routed {
	if strings.TrimSpace(s) == "" {
		return dropped(Message{Raw: s}, "empty message")
	}
	msg := Parse(s)
	if msg.Verb != VerbTTL {
		return Routed{Kind: KindCommand, Message: msg}
	}

	chanStr, ok := msg.Param("Channel", "Line")
	if !ok || chanStr == "" {
		return dropped(msg, "trigger without channel")
	}
	channel, ok := r.resolveChannel(chanStr)
	if !ok {
		return dropped(msg, "unknown channel "+strconv.Quote(chanStr))
	}

	edgeStr, ok := msg.Param("On", "State")
	if !ok {
		return dropped(msg, "trigger without edge")
	}
	on, ok := parseEdge(edgeStr)
	if !ok {
		return dropped(msg, "invalid edge "+strconv.Quote(edgeStr))
	}

	return Routed{
		Kind:    KindTrigger,
		Message: msg,
		Trigger: TriggerEvent{Channel: channel, On: on},
	}
}

func (r *Router) resolveChannel(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0
	}
	idx, ok := r.lines[strings.ToLower(s)]
	return idx, ok && idx >= 0
}

func parseEdge(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "high":
		return true, true
	case "0", "false", "off", "low":
		return false, true
	}
	return false, false
}

func dropped(msg Message, reason string) Routed {
	return Routed{Kind: KindDropped, Message: msg, Err: errors.Malformed(msg.Raw, reason)}
}

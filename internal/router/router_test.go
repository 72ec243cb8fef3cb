package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── ParsePairs ───────────────────────────────────────────────────────

func TestParsePairs_ValueContainsEquals(t *testing.T) {
	pairs, flags := ParsePairs("A=1 B=hello=world C")

	assert.Equal(t, map[string]string{"A": "1", "B": "hello=world"}, pairs)
	assert.Equal(t, []string{"C"}, flags)
}

func TestParsePairs_OrderIndependent(t *testing.T) {
	inputs := []string{
		"A=1 B=hello=world C",
		"C B=hello=world A=1",
		"B=hello=world   C\tA=1",
	}
	for _, in := range inputs {
		pairs, flags := ParsePairs(in)
		assert.Equal(t, map[string]string{"A": "1", "B": "hello=world"}, pairs, in)
		assert.Equal(t, []string{"C"}, flags, in)
	}
}

func TestParsePairs_Edges(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		pairs map[string]string
		flags []string
	}{
		{"empty", "", map[string]string{}, nil},
		{"empty value", "K=", map[string]string{"K": ""}, nil},
		{"empty key", "=v", map[string]string{"": "v"}, nil},
		{"duplicate key", "K=1 K=2", map[string]string{"K": "2"}, nil},
		{"flags only", "x y", map[string]string{}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, flags := ParsePairs(tt.in)
			assert.Equal(t, tt.pairs, pairs)
			assert.Equal(t, tt.flags, flags)
		})
	}
}

// ── Parse ────────────────────────────────────────────────────────────

func TestParse_Verbs(t *testing.T) {
	for _, v := range Verbs() {
		msg := Parse(v.String())
		assert.Equal(t, v, msg.Verb, v.String())
	}

	msg := Parse("startrecord")
	assert.Equal(t, VerbStartRecord, msg.Verb, "verbs match case-insensitively")
	assert.Equal(t, "startrecord", msg.Name)
}

func TestParse_UnknownVerbKeepsText(t *testing.T) {
	msg := Parse("Hello world Mood=fine")

	assert.Equal(t, VerbUnknown, msg.Verb)
	assert.Equal(t, "Hello", msg.Name)
	assert.Equal(t, []string{"world"}, msg.Flags)
	assert.Equal(t, "fine", msg.Params["Mood"])
	assert.Equal(t, "Hello world Mood=fine", msg.Raw)
}

func TestParse_LeadingPairIsNotVerb(t *testing.T) {
	msg := Parse("Name=cat ImageID=7")

	assert.Equal(t, VerbUnknown, msg.Verb)
	assert.Empty(t, msg.Name)
	assert.Nil(t, msg.Flags)
	assert.Len(t, msg.Params, 2)
}

func TestMessage_Param(t *testing.T) {
	msg := Parse("TTL line=3 state=on")

	v, ok := msg.Param("Channel", "Line")
	require.True(t, ok)
	assert.Equal(t, "3", v)

	v, ok = msg.Param("ON", "State")
	require.True(t, ok)
	assert.Equal(t, "on", v)

	_, ok = msg.Param("Missing")
	assert.False(t, ok)
}

func TestParse_KeysFoldIgnoringCase(t *testing.T) {
	msg := Parse("TTL Channel=1 channel=3 On=1")

	assert.Equal(t, map[string]string{"channel": "3", "On": "1"}, msg.Params)
	v, ok := msg.Param("Channel")
	require.True(t, ok)
	assert.Equal(t, "3", v, "the last spelling wins")
}

func TestRoute_RepeatedKeyIsDeterministic(t *testing.T) {
	r := New(nil)
	for i := 0; i < 200; i++ {
		got := r.Route("TTL Channel=1 channel=3 On=1 ON=0")
		require.Equal(t, KindTrigger, got.Kind)
		require.Equal(t, 3, got.Trigger.Channel)
		require.False(t, got.Trigger.On)
	}
}

func TestVerb_String(t *testing.T) {
	assert.Equal(t, "TTL", VerbTTL.String())
	assert.Equal(t, "Unknown", VerbUnknown.String())
	assert.Equal(t, "Unknown", Verb(42).String())
	assert.Equal(t, VerbUnknown, ParseVerb("Unknown"), "the sentinel name is not a verb")
}

// ── Route ────────────────────────────────────────────────────────────

func TestRoute_Triggers(t *testing.T) {
	r := New(map[string]int{"Stim": 2, "reward": 3})

	tests := []struct {
		in      string
		channel int
		on      bool
	}{
		{"TTL Channel=2 On=1", 2, true},
		{"TTL Channel=0 On=0", 0, false},
		{"ttl channel=1 on=true", 1, true},
		{"TTL Line=stim State=off", 2, false},
		{"TTL On=ON Channel=REWARD", 3, true},
		{"TTL Channel=99 On=1", 99, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := r.Route(tt.in)
			require.Equal(t, KindTrigger, got.Kind, "err: %v", got.Err)
			assert.Equal(t, tt.channel, got.Trigger.Channel)
			assert.Equal(t, tt.on, got.Trigger.On)
			assert.Nil(t, got.Err)
		})
	}
}

func TestRoute_Dropped(t *testing.T) {
	r := New(map[string]int{"stim": 2})

	tests := []struct {
		in     string
		reason string
	}{
		{"", "empty message"},
		{"   ", "empty message"},
		{"TTL", "trigger without channel"},
		{"TTL On=1", "trigger without channel"},
		{"TTL Channel= On=1", "trigger without channel"},
		{"TTL Channel=-1 On=1", `unknown channel "-1"`},
		{"TTL Channel=laser On=1", `unknown channel "laser"`},
		{"TTL Channel=2", "trigger without edge"},
		{"TTL Channel=stim On=maybe", `invalid edge "maybe"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := r.Route(tt.in)
			require.Equal(t, KindDropped, got.Kind)
			require.NotNil(t, got.Err)
			assert.Equal(t, tt.reason, got.Err.Reason)
			assert.Equal(t, tt.in, got.Err.Raw)
		})
	}
}

func TestRoute_Commands(t *testing.T) {
	r := New(nil)

	tests := []struct {
		in   string
		verb Verb
	}{
		{"StartAcquisition", VerbStartAcquisition},
		{"StopRecord", VerbStopRecord},
		{"AddCondition Name=cat ImageID=img=1", VerbAddCondition},
		{"StimClasses Classes=0,2", VerbStimClasses},
		{"free text from the peer", VerbUnknown},
		{"Name=orphan", VerbUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := r.Route(tt.in)
			assert.Equal(t, KindCommand, got.Kind)
			assert.Equal(t, tt.verb, got.Message.Verb)
			assert.Equal(t, tt.in, got.Message.Raw)
		})
	}

	got := r.Route("AddCondition Name=cat ImageID=img=1")
	id, _ := got.Message.Param("ImageID")
	assert.Equal(t, "img=1", id)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "command", KindCommand.String())
	assert.Equal(t, "trigger", KindTrigger.String())
	assert.Equal(t, "dropped", KindDropped.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"evbridge/internal/capability"
	"evbridge/internal/transport"
	"evbridge/netevents"
	"evbridge/util"
)

// TestSendMode_AgainstBridge runs send mode against a live processor
// on the fake network.
func TestSendMode_AgainstBridge(t *testing.T) {
	provider, _ := fakeProvider()
	p, err := netevents.New(provider, netevents.Options{Port: 5556, RecvTimeout: 20 * time.Millisecond, Reply: "ACK"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close() //nolint:errcheck
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitBound(t, p, 5556)

	h, err := provider.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	req, err := transport.NewZMQRequester(h, "tcp://127.0.0.1:5556", transport.ZMQOptions{})
	if err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	mode := &SendMode{
		Requester:  req,
		Capability: &capability.Relay{Sender: capability.Sender{Timeout: time.Second}},
		Release:    h.Release,
		Logger:     util.NewLogger(0),
		Stdin:      strings.NewReader("StartRecord\nTTL Channel=1 On=1\n"),
		Stdout:     out,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "ACK\nACK\n" {
		t.Errorf("output = %q", out.String())
	}
	if provider.Refs() != 1 {
		t.Errorf("send mode should release its reference, refs = %d", provider.Refs())
	}
}

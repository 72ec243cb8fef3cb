package core

import (
	"testing"

	"evbridge/config"
	"evbridge/internal/capability"
	"evbridge/internal/zmqctx"
	"evbridge/internal/zmqctx/zmqtest"
	"evbridge/util"
)

func fakeProvider() (*zmqctx.Provider, *zmqtest.Network) {
	net := zmqtest.NewNetwork()
	return zmqctx.NewProvider(zmqctx.WithBackend(net.Factory())), net
}

// TestBuild_Listen verifies Build produces a ListenMode carrying the
// listener settings.
func TestBuild_Listen(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = true
	cfg.Port = 6000
	cfg.Lines = 4
	cfg.LineNames = map[string]int{"stim": 2}
	provider, _ := fakeProvider()

	mode, err := Build(cfg, util.NewLogger(0), provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	lm, ok := mode.(*ListenMode)
	if !ok {
		t.Fatalf("expected *ListenMode, got %T", mode)
	}
	if lm.Options.Port != 6000 {
		t.Errorf("port = %d", lm.Options.Port)
	}
	if lm.Cycle != cfg.CycleDuration() {
		t.Errorf("cycle = %v", lm.Cycle)
	}
	names := []string{"0", "1", "stim", "3"}
	if len(lm.Lines) != len(names) {
		t.Fatalf("lines = %v", lm.Lines)
	}
	for i, want := range names {
		if lm.Lines[i].Name != want {
			t.Errorf("line %d = %q, want %q", i, lm.Lines[i].Name, want)
		}
	}
}

// TestBuild_Send verifies Build produces a SendMode with the relay
// capability when no messages are given.
func TestBuild_Send(t *testing.T) {
	cfg := config.Default()
	cfg.Send = "tcp://127.0.0.1:5556"
	provider, _ := fakeProvider()

	mode, err := Build(cfg, util.NewLogger(0), provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := mode.(*SendMode)
	if !ok {
		t.Fatalf("expected *SendMode, got %T", mode)
	}
	if _, ok := sm.Capability.(*capability.Relay); !ok {
		t.Errorf("expected *capability.Relay, got %T", sm.Capability)
	}
	if provider.Refs() != 1 {
		t.Errorf("refs = %d, want 1", provider.Refs())
	}
}

// TestBuild_SendScript verifies positional messages select the script
// capability.
func TestBuild_SendScript(t *testing.T) {
	cfg := config.Default()
	cfg.Send = "tcp://127.0.0.1:5556"
	cfg.Messages = []string{"StartAcquisition"}
	provider, _ := fakeProvider()

	mode, err := Build(cfg, util.NewLogger(0), provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*SendMode).Capability.(*capability.Script); !ok {
		t.Errorf("expected *capability.Script")
	}
}

// TestBuild_SendBadEndpoint verifies a rejected endpoint releases the
// context reference it took.
func TestBuild_SendBadEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Send = "tcp://127.0.0.1:0"
	provider, net := fakeProvider()

	if _, err := Build(cfg, util.NewLogger(0), provider, nil); err == nil {
		t.Fatal("expected error for port 0")
	}
	if provider.Refs() != 0 || net.Terms() != 1 {
		t.Errorf("refs = %d, terms = %d", provider.Refs(), net.Terms())
	}
}

// TestBuild_NoMode verifies an empty config is rejected.
func TestBuild_NoMode(t *testing.T) {
	provider, _ := fakeProvider()
	if _, err := Build(&config.Config{}, util.NewLogger(0), provider, nil); err == nil {
		t.Fatal("expected error")
	}
}

// TestBuildLines_AliasOrder verifies the alphabetically first alias
// names a shared line.
func TestBuildLines_AliasOrder(t *testing.T) {
	cfg := &config.Config{Lines: 2, LineNames: map[string]int{"zeta": 1, "alpha": 1, "far": 9}}
	lines := buildLines(cfg)
	if lines[0].Name != "0" || lines[1].Name != "alpha" {
		t.Errorf("lines = %v", lines)
	}
}

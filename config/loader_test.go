package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadFromEnv_Port(t *testing.T) {
	t.Setenv("EVBRIDGE_PORT", "6000")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Port != 6000 || !cfg.PortSet {
		t.Errorf("Port = %d (set=%t), want 6000", cfg.Port, cfg.PortSet)
	}
}

func TestLoadFromEnv_AnyPort(t *testing.T) {
	t.Setenv("EVBRIDGE_PORT", "*")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Port != 0 || !cfg.PortSet {
		t.Errorf("Port = %d (set=%t), want 0", cfg.Port, cfg.PortSet)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("EVBRIDGE_STATS", v)
			cfg := &Config{}
			LoadFromEnv(cfg)
			if !cfg.Stats {
				t.Error("Stats should be true")
			}
		})
	}
}

func TestLoadFromEnv_Durations(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"750ms", 750 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"250", 250 * time.Millisecond},
		{"soon", DefaultRecvTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("EVBRIDGE_RECV_TIMEOUT", tt.value)
			cfg := Default()
			LoadFromEnv(cfg)
			if cfg.RecvTimeout != tt.want {
				t.Errorf("RecvTimeout = %v, want %v", cfg.RecvTimeout, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_Processing(t *testing.T) {
	t.Setenv("EVBRIDGE_LINES", "16")
	t.Setenv("EVBRIDGE_LINE_NAMES", "Stim=2, photodiode=3,bogus")
	t.Setenv("EVBRIDGE_SAMPLE_RATE", "40000")
	t.Setenv("EVBRIDGE_BLOCK_SIZE", "512")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Lines != 16 {
		t.Errorf("Lines = %d", cfg.Lines)
	}
	if len(cfg.LineNames) != 2 || cfg.LineNames["stim"] != 2 || cfg.LineNames["photodiode"] != 3 {
		t.Errorf("LineNames = %v", cfg.LineNames)
	}
	if cfg.SampleRate != 40000 {
		t.Errorf("SampleRate = %v", cfg.SampleRate)
	}
	if cfg.BlockSize != 512 {
		t.Errorf("BlockSize = %d", cfg.BlockSize)
	}
}

func TestLoadFromEnv_StringFields(t *testing.T) {
	t.Setenv("EVBRIDGE_BIND", "127.0.0.1")
	t.Setenv("EVBRIDGE_REPLY", "ACK")
	t.Setenv("EVBRIDGE_SEND", "tcp://rig:5556")
	t.Setenv("EVBRIDGE_SETTINGS", "/tmp/rig.yaml")

	cfg := &Config{}
	LoadFromEnv(cfg)

	if cfg.BindAddress != "127.0.0.1" {
		t.Errorf("BindAddress = %q", cfg.BindAddress)
	}
	if cfg.Reply != "ACK" {
		t.Errorf("Reply = %q", cfg.Reply)
	}
	if cfg.Send != "tcp://rig:5556" {
		t.Errorf("Send = %q", cfg.Send)
	}
	if cfg.SettingsPath != "/tmp/rig.yaml" {
		t.Errorf("SettingsPath = %q", cfg.SettingsPath)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	// Ensure no EVBRIDGE_ vars are set.
	os.Clearenv()

	cfg := &Config{BindAddress: "original", Port: 1234}
	LoadFromEnv(cfg)

	if cfg.BindAddress != "original" {
		t.Errorf("BindAddress was overridden: %q", cfg.BindAddress)
	}
	if cfg.Port != 1234 || cfg.PortSet {
		t.Errorf("Port was overridden: %d", cfg.Port)
	}
}

func TestLoadFromEnv_InvalidIgnored(t *testing.T) {
	t.Setenv("EVBRIDGE_PORT", "not-a-number")
	t.Setenv("EVBRIDGE_LINES", "eight")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Port != DefaultPort || cfg.PortSet {
		t.Errorf("Port should be untouched for invalid input, got %d", cfg.Port)
	}
	if cfg.Lines != DefaultLines {
		t.Errorf("Lines = %d", cfg.Lines)
	}
}

func TestLoadFromEnv_Verbose(t *testing.T) {
	t.Setenv("EVBRIDGE_VERBOSE", "3")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.Verbose != 3 {
		t.Errorf("Verbose = %d, want 3", cfg.Verbose)
	}
}

package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Settings file  (settings.go, port only)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the EVBRIDGE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("750ms") or a bare number of milliseconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// well-formed values override the existing value.  Call it BEFORE flag
// parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EVBRIDGE_PORT"); v != "" {
		if port, err := ParsePortFlag(v); err == nil {
			cfg.Port = port
			cfg.PortSet = true
		}
	}
	if v := os.Getenv("EVBRIDGE_BIND"); v != "" {
		cfg.BindAddress = v
	}
	if v := envDuration("EVBRIDGE_RECV_TIMEOUT"); v > 0 {
		cfg.RecvTimeout = v
	}
	if v := envDuration("EVBRIDGE_SYNC_TIMEOUT"); v > 0 {
		cfg.SyncTimeout = v
	}
	if v := os.Getenv("EVBRIDGE_REPLY"); v != "" {
		cfg.Reply = v
	}
	if v := envInt("EVBRIDGE_BREAKER_FAILURES"); v > 0 {
		cfg.BreakerFailures = v
	}

	// Processing
	if v := envInt("EVBRIDGE_LINES"); v > 0 {
		cfg.Lines = v
	}
	if v := os.Getenv("EVBRIDGE_LINE_NAMES"); v != "" {
		for _, spec := range strings.Split(v, ",") {
			name, idx, err := ParseLineName(spec)
			if err != nil {
				continue
			}
			if cfg.LineNames == nil {
				cfg.LineNames = make(map[string]int)
			}
			cfg.LineNames[name] = idx
		}
	}
	if v := envFloat("EVBRIDGE_SAMPLE_RATE"); v > 0 {
		cfg.SampleRate = v
	}
	if v := envInt("EVBRIDGE_BLOCK_SIZE"); v > 0 {
		cfg.BlockSize = v
	}

	// Send mode
	if v := os.Getenv("EVBRIDGE_SEND"); v != "" {
		cfg.Send = v
	}
	if v := envDuration("EVBRIDGE_TIMEOUT"); v > 0 {
		cfg.RequestTimeout = v
	}

	// Persistence & output
	if v := os.Getenv("EVBRIDGE_SETTINGS"); v != "" {
		cfg.SettingsPath = v
	}
	if envBool("EVBRIDGE_STATS") {
		cfg.Stats = true
	}
	if v := envInt("EVBRIDGE_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

// Package config defines the runtime configuration for evbridge and the
// helpers that parse its flag values.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"evbridge/internal/errors"
	"evbridge/util"
)

// Config holds every tuneable for a single evbridge run.
type Config struct {
	// ── Mode ─────────────────────────────────────────────────────────
	Listen   bool     // -l: run the bridge
	Send     string   // -s: endpoint to send requests to
	Messages []string // send mode: positional messages; stdin when empty

	// ── Listener ─────────────────────────────────────────────────────
	Port            uint16 // 0 = any free port
	PortSet         bool   // Port came from a flag or the environment
	BindAddress     string
	RecvTimeout     time.Duration
	SyncTimeout     time.Duration
	Reply           string
	MaxMessage      int
	BreakerFailures int

	// ── Processing ───────────────────────────────────────────────────
	Lines      int
	LineNames  map[string]int // alias → 0-based line index
	SampleRate float64
	BlockSize  int

	// ── Send mode ────────────────────────────────────────────────────
	RequestTimeout time.Duration
	Retries        int

	// ── Persistence & output ─────────────────────────────────────────
	SettingsPath string
	Stats        bool
	Verbose      int
	DryRun       bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		BindAddress:     DefaultBindAddress,
		RecvTimeout:     DefaultRecvTimeout,
		SyncTimeout:     DefaultSyncTimeout,
		Reply:           DefaultReply,
		MaxMessage:      DefaultMaxMessage,
		BreakerFailures: DefaultBreakerFailures,
		Lines:           DefaultLines,
		SampleRate:      DefaultSampleRate,
		BlockSize:       DefaultBlockSize,
		RequestTimeout:  DefaultRequestTimeout,
		Retries:         DefaultRetries,
		SettingsPath:    DefaultSettingsFile,
	}
}

// CycleDuration is the wall-clock length of one processing block.
func (c *Config) CycleDuration() time.Duration {
	if c.SampleRate <= 0 || c.BlockSize <= 0 {
		return 0
	}
	return time.Duration(float64(c.BlockSize) / c.SampleRate * float64(time.Second))
}

// LineNameList returns the aliases as "name=idx" sorted by index, for
// display.
func (c *Config) LineNameList() []string {
	out := make([]string, 0, len(c.LineNames))
	for name, idx := range c.LineNames {
		out = append(out, fmt.Sprintf("%s=%d", name, idx))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ai, _ := strconv.Atoi(a[strings.LastIndexByte(a, '=')+1:])
		bi, _ := strconv.Atoi(b[strings.LastIndexByte(b, '=')+1:])
		if ai != bi {
			return ai < bi
		}
		return a < b
	})
	return out
}

// ── Flag value parsers ───────────────────────────────────────────────

// ParsePortFlag accepts a decimal port or "*" for any free port.
func ParsePortFlag(spec string) (uint16, error) {
	port, err := util.ParsePort(spec)
	if err != nil {
		return 0, &errors.ConfigError{
			Field:   "port",
			Value:   spec,
			Message: "expected 0-65535 or *",
		}
	}
	return port, nil
}

// ParseLineName splits a "NAME=IDX" alias.  Names are case-insensitive
// and stored lowercased.
func ParseLineName(spec string) (string, int, error) {
	name, idx, ok := strings.Cut(spec, "=")
	name = strings.ToLower(strings.TrimSpace(name))
	if !ok || name == "" {
		return "", 0, &errors.ConfigError{
			Field:   "line-name",
			Value:   spec,
			Message: "expected NAME=INDEX",
			Hint:    "e.g. --line-name photodiode=3",
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(idx))
	if err != nil || n < 0 {
		return "", 0, &errors.ConfigError{
			Field:   "line-name",
			Value:   spec,
			Message: fmt.Sprintf("line index %q is not a non-negative integer", idx),
		}
	}
	return name, n, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError.
func (c *Config) Validate() error {
	switch {
	case c.Listen && c.Send != "":
		return &errors.ConfigError{
			Field:   "send",
			Value:   c.Send,
			Message: "listen and send modes are mutually exclusive",
		}
	case !c.Listen && c.Send == "":
		return &errors.ConfigError{
			Field:   "listen",
			Message: "a mode is required",
			Hint:    "use -l to run the bridge or -s tcp://host:port to send requests",
		}
	}

	if c.Send != "" {
		return c.validateSend()
	}
	return c.validateListen()
}

func (c *Config) validateListen() error {
	if c.RecvTimeout <= 0 {
		return &errors.ConfigError{Field: "recv-timeout", Value: c.RecvTimeout, Message: "must be positive"}
	}
	if c.SyncTimeout <= 0 {
		return &errors.ConfigError{Field: "sync-timeout", Value: c.SyncTimeout, Message: "must be positive"}
	}
	if c.Reply == "" {
		return &errors.ConfigError{Field: "reply", Message: "must not be empty"}
	}
	if c.MaxMessage < 0 || c.MaxMessage > util.DefaultBufSize {
		return &errors.ConfigError{
			Field:   "max-message",
			Value:   c.MaxMessage,
			Message: fmt.Sprintf("must be between 0 and %d", util.DefaultBufSize),
		}
	}
	if c.BreakerFailures < 0 {
		return &errors.ConfigError{Field: "breaker-failures", Value: c.BreakerFailures, Message: "must not be negative"}
	}
	if c.Lines < 1 {
		return &errors.ConfigError{
			Field:   "lines",
			Value:   c.Lines,
			Message: "at least one output line is required",
		}
	}
	for name, idx := range c.LineNames {
		if idx >= c.Lines {
			return &errors.ConfigError{
				Field:   "line-name",
				Value:   fmt.Sprintf("%s=%d", name, idx),
				Message: fmt.Sprintf("index out of range for %d lines", c.Lines),
				Hint:    "line indices are 0-based; raise --lines or lower the index",
			}
		}
	}
	if c.SampleRate <= 0 {
		return &errors.ConfigError{Field: "sample-rate", Value: c.SampleRate, Message: "must be positive"}
	}
	if c.BlockSize <= 0 {
		return &errors.ConfigError{Field: "block-size", Value: c.BlockSize, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateSend() error {
	if !strings.HasPrefix(c.Send, "tcp://") {
		return &errors.ConfigError{
			Field:   "send",
			Value:   c.Send,
			Message: "only tcp:// endpoints are supported",
			Hint:    "e.g. -s tcp://127.0.0.1:5556",
		}
	}
	port, err := util.EndpointPort(c.Send)
	if err != nil || port == 0 {
		return &errors.ConfigError{
			Field:   "send",
			Value:   c.Send,
			Message: "endpoint needs a nonzero port",
		}
	}
	if c.RequestTimeout <= 0 {
		return &errors.ConfigError{Field: "timeout", Value: c.RequestTimeout, Message: "must be positive"}
	}
	if c.Retries < 0 {
		return &errors.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	return nil
}

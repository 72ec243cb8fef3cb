package core

import (
	"fmt"
	"strconv"
	"time"

	"evbridge/config"
	"evbridge/internal/capability"
	"evbridge/internal/emission"
	"evbridge/internal/metrics"
	"evbridge/internal/retry"
	"evbridge/internal/transport"
	"evbridge/internal/zmqctx"
	"evbridge/netevents"
	"evbridge/util"
)

// Build constructs the appropriate Mode from the given configuration.
// provider supplies the shared socket context; m may be nil.
func Build(cfg *config.Config, logger *util.Logger, provider *zmqctx.Provider, m *metrics.Collector) (Mode, error) {
	switch {
	case cfg.Listen:
		return buildListen(cfg, logger, provider, m)
	case cfg.Send != "":
		return buildSend(cfg, logger, provider)
	default:
		return nil, fmt.Errorf("no mode selected")
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildListen(cfg *config.Config, logger *util.Logger, provider *zmqctx.Provider, m *metrics.Collector) (Mode, error) {
	return &ListenMode{
		Provider: provider,
		Options: netevents.Options{
			Port:            cfg.Port,
			BindAddress:     cfg.BindAddress,
			RecvTimeout:     cfg.RecvTimeout,
			SyncTimeout:     cfg.SyncTimeout,
			Reply:           cfg.Reply,
			MaxMessage:      cfg.MaxMessage,
			LineNames:       cfg.LineNames,
			BreakerFailures: cfg.BreakerFailures,
			Logger:          logger,
			Metrics:         m,
		},
		Lines:        buildLines(cfg),
		BlockSize:    cfg.BlockSize,
		Cycle:        cfg.CycleDuration(),
		SettingsPath: cfg.SettingsPath,
		LineNames:    cfg.LineNames,
		Logger:       logger,
	}, nil
}

func buildSend(cfg *config.Config, logger *util.Logger, provider *zmqctx.Provider) (Mode, error) {
	h, err := provider.Acquire()
	if err != nil {
		return nil, err
	}
	req, err := transport.NewZMQRequester(h, cfg.Send, transport.ZMQOptions{
		Probe:  &transport.TCPDialer{Timeout: cfg.RequestTimeout},
		Logger: logger,
	})
	if err != nil {
		h.Release() //nolint:errcheck
		return nil, err
	}

	b := retry.RequestBackoff()
	b.MaxAttempts = cfg.Retries + 1
	sender := capability.Sender{Timeout: requestTimeout(cfg.RequestTimeout), Backoff: b}

	var c capability.Capability = &capability.Relay{Sender: sender}
	if len(cfg.Messages) > 0 {
		c = &capability.Script{Messages: cfg.Messages, Sender: sender}
	}
	return &SendMode{
		Requester:  req,
		Capability: c,
		Release:    h.Release,
		Logger:     logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildLines names each output line after its alias, or its index
// when it has none.  Of several aliases for one line the
// alphabetically first wins.
func buildLines(cfg *config.Config) []emission.Line {
	lines := make([]emission.Line, cfg.Lines)
	for i := range lines {
		lines[i].Name = strconv.Itoa(i)
	}
	for name, idx := range cfg.LineNames {
		if idx < 0 || idx >= len(lines) {
			continue
		}
		if cur := lines[idx].Name; cur == strconv.Itoa(idx) || name < cur {
			lines[idx].Name = name
		}
	}
	return lines
}

// requestTimeout falls back to the transport default.
func requestTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return transport.DefaultRequestTimeout
	}
	return d
}

// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"evbridge/config"
	"evbridge/internal/core"
	"evbridge/internal/metrics"
	"evbridge/internal/zmqctx"
	"evbridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X evbridge/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr is where usage and stats go; tests replace it.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the appropriate evbridge mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)
	fs := flag.NewFlagSet("evbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── mode ─────────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Run the bridge")
	fs.StringVarP(&cfg.Send, "send", "s", cfg.Send, "Send requests to tcp://host:port")

	// ── listener ─────────────────────────────────────────────────
	var portSpec string
	fs.StringVarP(&portSpec, "port", "p", "", "Listen port, or * for any free port")
	fs.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "Bind address (* for all interfaces)")
	fs.DurationVar(&cfg.RecvTimeout, "recv-timeout", cfg.RecvTimeout, "Receive timeout")
	fs.DurationVar(&cfg.SyncTimeout, "sync-timeout", cfg.SyncTimeout, "Synchronous port change timeout")
	fs.StringVar(&cfg.Reply, "reply", cfg.Reply, "Reply sent for every request")
	fs.IntVar(&cfg.MaxMessage, "max-message", cfg.MaxMessage, "Truncate requests to this many bytes (0 = 64 KiB)")
	fs.IntVar(&cfg.BreakerFailures, "breaker-failures", cfg.BreakerFailures, "Receive errors before the socket is rebuilt")

	// ── processing ───────────────────────────────────────────────
	fs.IntVar(&cfg.Lines, "lines", cfg.Lines, "Number of trigger output lines")
	var lineNames []string
	fs.StringArrayVar(&lineNames, "line-name", nil, "Line alias NAME=INDEX (repeatable)")
	fs.Float64Var(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Simulated sample rate in Hz")
	fs.IntVar(&cfg.BlockSize, "block-size", cfg.BlockSize, "Samples per processing block")

	// ── send mode ────────────────────────────────────────────────
	fs.DurationVarP(&cfg.RequestTimeout, "timeout", "w", cfg.RequestTimeout, "Per-request timeout")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Retries for timed-out or refused requests")

	// ── persistence & output ─────────────────────────────────────
	fs.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "Settings file (empty to disable)")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print metrics as JSON on exit")
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stderr, "evbridge %s\n", version)
		return nil
	}

	if err := applyFlags(cfg, fs, portSpec, lineNames); err != nil {
		return err
	}

	// ── settings file ────────────────────────────────────────────
	if cfg.Listen && cfg.SettingsPath != "" {
		s, err := config.LoadSettings(cfg.SettingsPath)
		if err != nil {
			return err
		}
		if err := s.Apply(cfg); err != nil {
			return fmt.Errorf("%s: %w", cfg.SettingsPath, err)
		}
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if cfg.DryRun {
		logger.Info("configuration ok: %s", describe(cfg))
		return nil
	}

	// ── build & run ──────────────────────────────────────────────
	m := metrics.New()
	provider := zmqctx.NewProvider()

	mode, err := core.Build(cfg, logger, provider, m)
	if err != nil {
		return err
	}
	err = mode.Run(ctx)

	if cfg.Stats {
		fmt.Fprintln(stderr, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

func applyFlags(cfg *config.Config, fs *flag.FlagSet, portSpec string, lineNames []string) error {
	if fs.Changed("port") {
		port, err := config.ParsePortFlag(portSpec)
		if err != nil {
			return err
		}
		cfg.Port = port
		cfg.PortSet = true
	}

	for _, spec := range lineNames {
		name, idx, err := config.ParseLineName(spec)
		if err != nil {
			return err
		}
		if cfg.LineNames == nil {
			cfg.LineNames = make(map[string]int)
		}
		cfg.LineNames[name] = idx
	}

	rest := fs.Args()
	if cfg.Listen && len(rest) > 0 {
		return fmt.Errorf("unexpected arguments for listen mode: %s", strings.Join(rest, " "))
	}
	cfg.Messages = rest
	return nil
}

func describe(cfg *config.Config) string {
	if cfg.Send != "" {
		return fmt.Sprintf("send to %s (timeout %v, %d retries)", cfg.Send, cfg.RequestTimeout, cfg.Retries)
	}
	port := "*"
	if cfg.Port != 0 {
		port = fmt.Sprint(cfg.Port)
	}
	s := fmt.Sprintf("listen on %s:%s, %d lines, block %d @ %.0f Hz",
		cfg.BindAddress, port, cfg.Lines, cfg.BlockSize, cfg.SampleRate)
	if len(cfg.LineNames) > 0 {
		s += ", aliases " + strings.Join(cfg.LineNameList(), ",")
	}
	return s
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `evbridge – network event bridge v%s

Answers ZeroMQ requests with a fixed reply and turns them into trigger
and text events on a processing clock.

Usage:
  evbridge -l [-p <port>|*] [options]              Run the bridge
  evbridge -s tcp://<host>:<port> [message ...]    Send requests

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  evbridge -l -p 5556 --lines 8 --line-name stim=2
  evbridge -s tcp://127.0.0.1:5556 "TTL Channel=2 On=1"
  echo StartAcquisition | evbridge -s tcp://rig:5556
`)
}

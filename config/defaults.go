package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the settings file, and environment variable
// loading.

const (
	// DefaultPort is the port the bridge listens on when nothing else
	// asks for one.
	DefaultPort = 5556

	// DefaultBindAddress binds every interface.
	DefaultBindAddress = "*"

	// DefaultRecvTimeout bounds each receive, and so how long stop and
	// rebind requests can go unnoticed.
	DefaultRecvTimeout = 500 * time.Millisecond

	// DefaultSyncTimeout bounds a synchronous port change.
	DefaultSyncTimeout = 2 * time.Second

	// DefaultReply is sent in answer to every request.
	DefaultReply = "OK"

	// DefaultMaxMessage of 0 uses the full receive buffer.
	DefaultMaxMessage = 0

	// DefaultBreakerFailures is how many consecutive receive errors
	// rebuild the socket.
	DefaultBreakerFailures = 3

	// DefaultLines is the number of trigger output lines.
	DefaultLines = 8

	// DefaultSampleRate and DefaultBlockSize drive the simulated
	// processing clock in listen mode.
	DefaultSampleRate = 30000.0
	DefaultBlockSize  = 1024

	// DefaultRequestTimeout bounds one send-mode request.
	DefaultRequestTimeout = 2 * time.Second

	// DefaultRetries is how many times send mode retries a request
	// that timed out or was refused.
	DefaultRetries = 4

	// DefaultSettingsFile persists the requested port across runs.
	DefaultSettingsFile = "evbridge.yaml"

	// DefaultGracePeriod is how long listen mode waits for its
	// goroutines after shutdown is requested.
	DefaultGracePeriod = 5 * time.Second
)

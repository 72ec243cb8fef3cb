// Package core is the orchestration layer.  It composes the bridge,
// transports and capabilities into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	zmqctx / transport  →  capability  →  session  →  core  →  cmd (CLI)
//	listener / emission →  netevents   ─────────────→  core
package core

import "context"

// Mode represents a complete operational mode of evbridge (listen or
// send).  Each mode owns its full lifecycle from socket creation to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}

// Package session represents one send-mode run, binding a requester
// to the local I/O endpoints it reads messages from and prints replies
// to.
//
// Sessions decouple capabilities from concrete I/O sources: a
// capability doesn't need to know whether it's reading from os.Stdin
// or a test buffer, it just uses the session's Reader/Writer.
package session

import (
	"io"

	"evbridge/internal/transport"
	"evbridge/util"
)

// Session encapsulates the runtime context for a single run.
// Capabilities operate on sessions rather than raw sockets, enabling
// clean testing and I/O abstraction.
type Session struct {
	Requester transport.Requester
	Stdin     io.Reader
	Stdout    io.Writer
	Logger    *util.Logger
}

// New creates a Session bound to the given requester and I/O pair.
func New(req transport.Requester, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Session {
	return &Session{
		Requester: req,
		Stdin:     stdin,
		Stdout:    stdout,
		Logger:    logger,
	}
}

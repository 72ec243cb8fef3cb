// Package transport is the client side of the bridge protocol: it
// sends one text message to a running bridge and waits for the reply.
package transport

import (
	"context"
	"net"
)

// Requester sends a request and returns the peer's reply.
type Requester interface {
	// Request blocks until the reply arrives or ctx is done.
	Request(ctx context.Context, msg string) (string, error)

	// Close releases the underlying socket.
	Close() error
}

// Dialer opens plain network connections.  The requester uses one to
// check that something is listening before it queues a message on a
// socket that would otherwise wait silently for a peer.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
}

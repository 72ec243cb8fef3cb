package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer opens TCP connections with an optional timeout.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to address.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// Probe reports whether a TCP listener accepts connections at address.
func Probe(ctx context.Context, d Dialer, address string) error {
	conn, err := d.Dial(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

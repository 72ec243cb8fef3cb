package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NotConnected is how an unbound listener is shown to the user.
const NotConnected = "<not connected>"

// Endpoint builds a ZeroMQ TCP endpoint.  An empty host binds every
// interface and port 0 becomes the wildcard, letting the OS choose.
func Endpoint(host string, port uint16) string {
	if host == "" {
		host = "*"
	}
	p := "*"
	if port != 0 {
		p = strconv.Itoa(int(port))
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return "tcp://" + host + ":" + p
}

// EndpointPort extracts the port from a resolved endpoint such as
// "tcp://0.0.0.0:5556" or "tcp://[::]:5556".
func EndpointPort(endpoint string) (uint16, error) {
	i := strings.LastIndex(endpoint, ":")
	if i < 0 || i == len(endpoint)-1 {
		return 0, fmt.Errorf("endpoint %q has no port", endpoint)
	}
	n, err := strconv.ParseUint(endpoint[i+1:], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("endpoint %q: invalid port: %w", endpoint, err)
	}
	return uint16(n), nil
}

// PortString renders a bound port for display, with 0 shown as
// [NotConnected].
func PortString(port uint16) string {
	if port == 0 {
		return NotConnected
	}
	return strconv.Itoa(int(port))
}

// ParsePort accepts a decimal port in 0-65535, or "*" / "" for any.
func ParsePort(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

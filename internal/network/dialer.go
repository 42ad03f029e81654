// internal/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialerConfig holds the TCP layer settings for outbound connections.
type DialerConfig struct {
	Timeout   time.Duration
	KeepAlive time.Duration
	// NoDelay disables Nagle's algorithm. Probe traffic is many small
	// requests, so coalescing segments only adds latency.
	NoDelay bool
	// Resolver allows custom DNS resolution. Nil means the system resolver.
	Resolver *net.Resolver
}

// NewDialerConfig returns dialer settings tuned for link probing: fail
// fast on dead hosts and keep established connections warm between
// probes of the same origin.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   5 * time.Second,
		KeepAlive: 15 * time.Second,
		NoDelay:   true,
		Resolver:  net.DefaultResolver,
	}
}

// DialContext establishes a TCP connection with the configured socket
// options applied. Suitable for http.Transport.DialContext.
func DialContext(ctx context.Context, network, address string, cfg *DialerConfig) (net.Conn, error) {
	if cfg == nil {
		cfg = NewDialerConfig()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: cfg.KeepAlive,
		// Happy Eyeballs (RFC 8305) for fast IPv4/IPv6 fallback.
		FallbackDelay: 300 * time.Millisecond,
		Resolver:      cfg.Resolver,
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(cfg.NoDelay); err != nil {
			tcpConn.Close()
			return nil, fmt.Errorf("failed to set TCP NoDelay: %w", err)
		}
	}
	return conn, nil
}

// internal/network/httpclient.go

// Package network builds the outbound HTTP plumbing for components that
// talk to audited sites directly instead of through the browser.
package network

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Defaults for the probe-facing HTTP client. The pool limits sit above
// the standard library's because several audit workers can probe links
// on the same host at once.
const (
	DefaultRequestTimeout        = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second

	DefaultMaxIdleConns        = 64
	DefaultMaxIdleConnsPerHost = 16
	DefaultMaxConnsPerHost     = 32
	DefaultIdleConnTimeout     = 30 * time.Second
)

// ClientConfig holds the configuration for the HTTP client and the
// transport underneath it.
type ClientConfig struct {
	// IgnoreTLSErrors skips certificate verification so probes reach the
	// same pages a browser launched with the equivalent flag can.
	IgnoreTLSErrors bool

	RequestTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	ForceHTTP2 bool

	Dialer *DialerConfig
	Logger *zap.Logger
}

// NewClientConfig creates a configuration tuned for link probing.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:        DefaultRequestTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       DefaultMaxConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ForceHTTP2:            true,
		Dialer:                NewDialerConfig(),
	}
}

// NewTransport creates an http.Transport from the configuration.
func NewTransport(cfg *ClientConfig) *http.Transport {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialerCfg := cfg.Dialer
	if dialerCfg == nil {
		dialerCfg = NewDialerConfig()
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return DialContext(ctx, network, addr, dialerCfg)
		},
		TLSClientConfig:       newTLSConfig(cfg.IgnoreTLSErrors),
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
	}

	if cfg.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1.", zap.Error(err))
		}
	}

	return transport
}

// NewClient builds an HTTP client on the configured transport. Redirects
// are never followed automatically; callers that care about redirect
// chains walk them hop by hop.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	return &http.Client{
		Transport: NewTransport(cfg),
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// newTLSConfig returns modern TLS settings with session resumption so
// repeated probes of one origin skip the full handshake.
func newTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(256),
		InsecureSkipVerify: insecure,
	}
}

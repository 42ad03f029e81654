// internal/probe/probe.go

// Package probe checks where an anchor's href actually leads. It issues
// HEAD requests, follows redirects manually so the full status chain is
// recorded, and caches results so repeated links on a page cost one
// request.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/metrics"
	"github.com/RudraKhare/DeadClickCrawler/internal/network"
)

const maxRedirects = 10

// Prober resolves and probes link targets. Safe for concurrent use.
type Prober struct {
	client    *http.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics
	cache     *lru.Cache[string, []int]
	limiter   *rate.Limiter
	userAgent string
}

// New builds a prober from configuration. Requests carry the browser's
// User-Agent and TLS posture so probe traffic blends in with the
// audited session's.
func New(cfg config.ProbeConfig, browser config.BrowserConfig, m *metrics.Metrics, logger *zap.Logger) (*Prober, error) {
	cache, err := lru.New[string, []int](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe cache: %w", err)
	}

	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}

	clientCfg := network.NewClientConfig()
	clientCfg.RequestTimeout = cfg.Timeout
	clientCfg.IgnoreTLSErrors = browser.IgnoreTLSErrors
	clientCfg.Logger = logger

	return &Prober{
		client:    network.NewClient(clientCfg),
		logger:    logger.Named("probe"),
		metrics:   m,
		cache:     cache,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		userAgent: browser.UserAgent,
	}, nil
}

// Client exposes the underlying HTTP client so tests can swap its
// transport.
func (p *Prober) Client() *http.Client {
	return p.client
}

// Resolve turns an href attribute into an absolute probeable URL. The
// second return is false for fragments, script pseudo-URLs and any
// scheme a HEAD request cannot answer for.
func Resolve(pageURL, href string) (string, bool) {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:", "about:", "blob:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

// Probe issues a HEAD request against target and returns the status code
// of every hop in the redirect chain, final response last. Results are
// cached by URL.
func (p *Prober) Probe(ctx context.Context, target string) ([]int, error) {
	if chain, ok := p.cache.Get(target); ok {
		return chain, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("probe rate limiter: %w", err)
	}

	chain, err := p.follow(ctx, target)
	if err != nil {
		return nil, err
	}

	p.cache.Add(target, chain)
	p.logger.Debug("Probed link target.", zap.String("url", target), zap.Ints("chain", chain))
	return chain, nil
}

// follow walks the redirect chain by hand, collecting each hop's status.
func (p *Prober) follow(ctx context.Context, target string) ([]int, error) {
	chain := make([]int, 0, 2)
	current := target

	for i := 0; i < maxRedirects; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, current, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build probe request for %q: %w", current, err)
		}
		req.Header.Set("User-Agent", p.userAgent)

		p.metrics.IncProbeRequest()
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("probe request failed: %w", err)
		}
		resp.Body.Close()

		chain = append(chain, resp.StatusCode)

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return chain, nil
		}

		loc, err := resp.Location()
		if err != nil {
			// A 3xx without a Location header terminates the chain.
			return chain, nil
		}
		current = loc.String()
	}

	return nil, fmt.Errorf("maximum number of redirects (%d) exceeded probing %q", maxRedirects, target)
}

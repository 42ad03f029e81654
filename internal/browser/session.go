// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

// Session is a single isolated browser process plus one tab driven over CDP.
// It is not safe for concurrent use; each worker owns exactly one session.
type Session struct {
	id          string
	cfg         config.BrowserConfig
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	dataDir     string
	logger      *zap.Logger

	mu      sync.Mutex
	closed  bool
	onClose func()
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Context returns the chromedp target context, or an already-canceled
// context when the session has been closed.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.ctx
}

// Run executes chromedp actions against this session, honoring both the
// session lifetime and the caller's deadline.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.Context(), ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate drives the tab to url, waits for the DOM to become ready and
// then sleeps for the settle period so late-loading scripts can attach
// their handlers.
func (s *Session) Navigate(ctx context.Context, url string, settle time.Duration) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	err := s.Run(navCtx, chromedp.Tasks{
		chromedp.ActionFunc(func(c context.Context) error {
			if err := network.SetCacheDisabled(true).Do(c); err != nil {
				s.logger.Warn("Failed to disable browser cache.", zap.Error(err))
			}
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Evaluate runs a JavaScript expression in the top frame and unmarshals the
// result into out. Pass nil to discard the result.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	if err := s.Run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// Location reports the current top-frame URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.Run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Title reports the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.Run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// Close tears down the tab, kills the browser process, waits for it to
// exit and removes the temporary profile directory. Safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	onClose := s.onClose
	sessionCtx := s.ctx
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.", zap.String("session_id", s.id))

	// Ask the browser to shut down gracefully before cancelling the
	// allocator, which kills the process.
	if err := chromedp.Cancel(sessionCtx); err != nil {
		s.logger.Debug("Graceful browser close failed.", zap.Error(err))
	}
	s.cancel()
	s.allocCancel()

	s.waitForExit(sessionCtx)

	if s.dataDir != "" {
		if err := os.RemoveAll(s.dataDir); err != nil {
			s.logger.Warn("Failed to remove profile directory.",
				zap.String("dir", s.dataDir), zap.Error(err))
		}
	}

	if onClose != nil {
		onClose()
	}
}

// waitForExit blocks until the underlying browser process has been reaped,
// bounded by closeWaitTimeout. Removing the profile directory while the
// process still holds it open would leave stale lock files behind.
func (s *Session) waitForExit(sessionCtx context.Context) {
	c := chromedp.FromContext(sessionCtx)
	if c == nil || c.Allocator == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.Allocator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWaitTimeout):
		s.logger.Warn("Timeout waiting for browser process to exit.")
	}
}

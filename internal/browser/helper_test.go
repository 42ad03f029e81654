// internal/browser/helper_test.go
package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/RudraKhare/DeadClickCrawler/internal/browser"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

// chromeCandidates are the executable names chromedp itself knows how to
// locate. Tests that need a live browser skip when none is installed.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"chrome",
}

func requireBrowser(t *testing.T) {
	t.Helper()
	for _, name := range chromeCandidates {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome or Chromium binary found in PATH")
}

var (
	// browserSlots caps concurrent Chrome processes across the package.
	browserSlots     *semaphore.Weighted
	browserSlotsOnce sync.Once
)

const (
	maxTestBrowsers    = 2
	slotAcquireTimeout = 10 * time.Second
)

func acquireBrowserSlot(t *testing.T) {
	t.Helper()
	browserSlotsOnce.Do(func() {
		limit := int64(runtime.GOMAXPROCS(0))
		if limit > maxTestBrowsers {
			limit = maxTestBrowsers
		}
		if limit < 1 {
			limit = 1
		}
		browserSlots = semaphore.NewWeighted(limit)
	})

	ctx, cancel := context.WithTimeout(context.Background(), slotAcquireTimeout)
	defer cancel()
	require.NoError(t, browserSlots.Acquire(ctx, 1), "timed out waiting for a browser slot")
	t.Cleanup(func() { browserSlots.Release(1) })
}

// testFixture bundles the manager, logger and config one browser test needs.
type testFixture struct {
	Manager *browser.Manager
	Logger  *zap.Logger
	Cfg     config.BrowserConfig
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	requireBrowser(t)
	acquireBrowserSlot(t)

	logger := zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
	cfg := config.NewDefaultConfig().Browser
	cfg.Headless = true

	mgr := browser.NewManager(cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})

	return &testFixture{Manager: mgr, Logger: logger, Cfg: cfg}
}

// createTestServer starts an httptest server torn down with the test.
func createTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// createStaticTestServer returns a server that serves the given HTML content.
func createStaticTestServer(t *testing.T, htmlContent string) *httptest.Server {
	t.Helper()
	return createTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, htmlContent)
	}))
}

// internal/browser/manager_test.go
package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/browser"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

func TestAcquireAfterShutdown(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mgr := browser.NewManager(config.NewDefaultConfig().Browser, logger)

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(shutCtx))

	_, err := mgr.Acquire(context.Background())
	require.Error(t, err)

	var provErr *schemas.ProvisionError
	require.ErrorAs(t, err, &provErr)
	require.ErrorIs(t, err, browser.ErrManagerClosed)
}

func TestManagerPersona(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig().Browser
	cfg.UserAgent = "TestAgent/1.0"
	cfg.WindowWidth = 1280
	cfg.WindowHeight = 720

	mgr := browser.NewManager(cfg, logger)
	persona := mgr.Persona()
	require.Equal(t, "TestAgent/1.0", persona.UserAgent)
	require.EqualValues(t, 1280, persona.Screen.Width)
	require.EqualValues(t, 720, persona.Screen.Height)
}

func TestAcquireNavigateEvaluate(t *testing.T) {
	fixture := newFixture(t)
	srv := createStaticTestServer(t, `<html><head><title>Landing</title></head><body><h1 id="hero">hello</h1></body></html>`)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	sess, err := fixture.Manager.Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	require.NoError(t, sess.Navigate(ctx, srv.URL, 100*time.Millisecond))

	loc, err := sess.Location(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/", loc)

	title, err := sess.Title(ctx)
	require.NoError(t, err)
	require.Equal(t, "Landing", title)

	var text string
	require.NoError(t, sess.Evaluate(ctx, `document.querySelector('#hero').innerText`, &text))
	require.Equal(t, "hello", text)

	// The stealth tasks must hide the automation fingerprint.
	var clean bool
	require.NoError(t, sess.Evaluate(ctx, `navigator.webdriver === undefined || navigator.webdriver === false`, &clean))
	require.True(t, clean, "navigator.webdriver should not report automation")

	// Closing twice must be harmless.
	sess.Close()
	sess.Close()
}

func TestSessionIsolation(t *testing.T) {
	fixture := newFixture(t)
	srv := createStaticTestServer(t, `<html><body>isolated</body></html>`)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	first, err := fixture.Manager.Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(first.Close)

	second, err := fixture.Manager.Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(second.Close)

	require.NotEqual(t, first.ID(), second.ID())

	require.NoError(t, first.Navigate(ctx, srv.URL, 0))
	require.NoError(t, second.Navigate(ctx, srv.URL, 0))

	var ok bool
	require.NoError(t, first.Evaluate(ctx, `localStorage.setItem("probe", "one"); true`, &ok))
	require.True(t, ok)

	// Sessions run in separate browser processes with separate profiles,
	// so storage written in one must be invisible to the other.
	var got string
	require.NoError(t, second.Evaluate(ctx, `localStorage.getItem("probe") || ""`, &got))
	require.Empty(t, got)
}

func TestShutdownClosesOpenSessions(t *testing.T) {
	fixture := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	sess, err := fixture.Manager.Acquire(ctx)
	require.NoError(t, err)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	require.NoError(t, fixture.Manager.Shutdown(shutCtx))

	// The session context must be dead after shutdown.
	require.Error(t, sess.Context().Err())
}

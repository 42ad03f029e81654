// internal/browser/manager.go

// Package browser provisions isolated headless Chrome sessions over the
// Chrome DevTools Protocol. Each session runs in its own browser process
// with a fresh profile directory so that cookies, storage and navigation
// state never leak between concurrent workers.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/browser/stealth"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
)

const (
	// launchVerifyTimeout bounds the about:blank probe that confirms a
	// freshly spawned browser process is actually responsive.
	launchVerifyTimeout = 30 * time.Second

	// closeWaitTimeout bounds how long Close waits for the browser
	// process to exit before abandoning profile cleanup.
	closeWaitTimeout = 10 * time.Second
)

// ErrManagerClosed is returned by Acquire after Shutdown has been called.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager creates and tracks browser sessions. It is safe for concurrent
// use; workers call Acquire in parallel and the manager keeps enough
// bookkeeping to drain everything on Shutdown.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	persona stealth.Persona

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewManager builds a manager from the browser configuration. No browser
// process is started until the first Acquire.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("browser"),
		cfg:      cfg,
		persona:  stealth.DefaultPersona(cfg.UserAgent, cfg.WindowWidth, cfg.WindowHeight),
		sessions: make(map[string]*Session),
	}
}

// Persona reports the identity profile applied to every session.
func (m *Manager) Persona() stealth.Persona {
	return m.persona
}

// Acquire spawns an isolated browser process with a fresh temporary profile
// directory, verifies it is responsive, applies the stealth tasks and
// returns a ready session. The caller owns the session and must Close it.
// All failures are wrapped in *schemas.ProvisionError.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &schemas.ProvisionError{Err: ErrManagerClosed}
	}
	m.wg.Add(1)
	m.mu.Unlock()

	session, err := m.launchSession(ctx)
	if err != nil {
		m.wg.Done()
		return nil, &schemas.ProvisionError{Err: err}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		session.Close()
		m.wg.Done()
		return nil, &schemas.ProvisionError{Err: ErrManagerClosed}
	}
	m.sessions[session.id] = session
	m.mu.Unlock()

	session.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, session.id)
		m.mu.Unlock()
		m.wg.Done()
	}

	m.logger.Info("Browser session provisioned.",
		zap.String("session_id", session.id),
		zap.String("profile_dir", session.dataDir),
	)
	return session, nil
}

// launchSession does the heavy lifting: profile dir, allocator, launch
// verification and stealth injection.
func (m *Manager) launchSession(ctx context.Context) (*Session, error) {
	dataDir, err := os.MkdirTemp("", "deadclick-profile-")
	if err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	opts := m.buildAllocatorOptions(dataDir)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cleanup := func() {
		taskCancel()
		allocCancel()
		if rmErr := os.RemoveAll(dataDir); rmErr != nil {
			m.logger.Debug("Failed to remove profile directory after launch failure.",
				zap.String("dir", dataDir), zap.Error(rmErr))
		}
	}

	// Confirm the browser started and is responsive before handing it out.
	verifyCtx, cancelVerify := context.WithTimeout(taskCtx, launchVerifyTimeout)
	defer cancelVerify()
	if err := chromedp.Run(verifyCtx, chromedp.Navigate("about:blank")); err != nil {
		cleanup()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	if err := chromedp.Run(taskCtx, stealth.Apply(m.persona, m.logger)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to apply stealth tasks: %w", err)
	}

	return &Session{
		id:          uuid.NewString(),
		cfg:         m.cfg,
		ctx:         taskCtx,
		cancel:      taskCancel,
		allocCancel: allocCancel,
		dataDir:     dataDir,
		logger:      m.logger.Named("session"),
	}, nil
}

// buildAllocatorOptions assembles the launch flags for a stealthy,
// configurable browser process bound to the given profile directory.
func (m *Manager) buildAllocatorOptions(dataDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// The chromedp defaults ship --enable-automation, which advertises
		// the browser as driven and flips navigator.webdriver.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserAgent(m.persona.UserAgent),
		chromedp.WindowSize(int(m.persona.Screen.Width), int(m.persona.Screen.Height)),
		chromedp.UserDataDir(dataDir),
	)

	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}

	// Flags required when running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// Shutdown closes every outstanding session and waits for them to drain,
// bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_sessions", len(open)))

	for _, s := range open {
		go s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browser sessions closed.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for browser sessions to close.", zap.Error(ctx.Err()))
		return fmt.Errorf("browser manager shutdown: %w", ctx.Err())
	}
}

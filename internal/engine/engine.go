// internal/engine/engine.go

// Package engine distributes element tests across a bounded pool of
// browser sessions. Each worker owns exactly one session for its whole
// lifetime, so page state never leaks between concurrent tests, and
// results flow back over a channel keyed by queue index so the caller
// gets them in discovery order.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/clicker"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/metrics"
)

// MessageNotTested marks elements the run was cancelled out from under.
const MessageNotTested = "not tested: run cancelled"

// renavigateSettle is the pause after pulling a worker back to the target
// page when a previous click navigated it away.
const renavigateSettle = 2 * time.Second

// Session is the slice of a browser session a worker drives.
type Session interface {
	clicker.Session
	Navigate(ctx context.Context, url string, settle time.Duration) error
	Close()
}

// SessionProvider hands out isolated sessions, one per worker.
type SessionProvider interface {
	Acquire(ctx context.Context) (Session, error)
}

// ProvisionFunc adapts a plain acquire function into a SessionProvider.
type ProvisionFunc func(ctx context.Context) (Session, error)

// Acquire implements SessionProvider.
func (f ProvisionFunc) Acquire(ctx context.Context) (Session, error) {
	return f(ctx)
}

// ElementTester runs the click protocol against one element.
type ElementTester interface {
	TestElement(ctx context.Context, sess clicker.Session, info schemas.ElementInfo) clicker.Outcome
}

// Engine fans element tests out to a worker pool.
type Engine struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	provider SessionProvider
	tester   ElementTester

	workers        int
	waitTime       time.Duration
	elementTimeout time.Duration
	limiter        *rate.Limiter
}

// New builds an engine. The shared limiter paces clicks across all
// workers so a large pool does not hammer the target.
func New(cfg config.AuditConfig, provider SessionProvider, tester ElementTester, m *metrics.Metrics, logger *zap.Logger) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	waitTime := cfg.WaitTime
	if waitTime <= 0 {
		waitTime = 5 * time.Second
	}
	elementTimeout := cfg.ElementTimeout
	if elementTimeout <= 0 {
		elementTimeout = 30 * time.Second
	}

	clickRate := rate.Limit(cfg.ClickRate)
	if cfg.ClickRate <= 0 {
		clickRate = rate.Inf
	}

	return &Engine{
		logger:         logger.Named("engine"),
		metrics:        m,
		provider:       provider,
		tester:         tester,
		workers:        workers,
		waitTime:       waitTime,
		elementTimeout: elementTimeout,
		limiter:        rate.NewLimiter(clickRate, 1),
	}
}

// indexed carries a finished result back with its queue position.
type indexed struct {
	idx int
	res schemas.TestResult
}

// Run tests every element against target and returns exactly one result
// per element, in input order. Elements the pool never reached, because
// ctx was cancelled, come back as error results rather than being
// silently dropped. Run fails only when not a single worker session
// could be provisioned.
func (e *Engine) Run(ctx context.Context, target string, elements []schemas.ElementInfo) ([]schemas.TestResult, error) {
	if len(elements) == 0 {
		return []schemas.TestResult{}, nil
	}

	workers := e.workers
	if workers > len(elements) {
		workers = len(elements)
	}

	e.logger.Info("Starting element test pool.",
		zap.Int("workers", workers),
		zap.Int("elements", len(elements)),
		zap.String("target", target),
	)

	tasks := make(chan int, len(elements))
	for i := range elements {
		tasks <- i
	}
	close(tasks)

	// Buffered to capacity so workers never block delivering results.
	out := make(chan indexed, len(elements))

	var (
		dead    atomic.Int32
		failMu  sync.Mutex
		failErr error
	)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		id := w + 1
		g.Go(func() error {
			err := e.runWorker(ctx, id, target, elements, tasks, out)
			if err == nil {
				return nil
			}
			failMu.Lock()
			failErr = err
			failMu.Unlock()
			// A dead slot only aborts the run once every slot is dead.
			if int(dead.Add(1)) == workers {
				return err
			}
			return nil
		})
	}

	go func() {
		// Workers return nil on slot death, so Wait's error is the
		// all-slots-dead signal handled below.
		_ = g.Wait()
		close(out)
	}()

	results := make([]schemas.TestResult, len(elements))
	filled := make([]bool, len(elements))
	for r := range out {
		results[r.idx] = r.res
		filled[r.idx] = true
	}

	if int(dead.Load()) == workers {
		failMu.Lock()
		err := failErr
		failMu.Unlock()
		return nil, fmt.Errorf("no worker session survived provisioning: %w", err)
	}

	for i, ok := range filled {
		if ok {
			continue
		}
		results[i] = schemas.TestResult{
			ElementInfo:  elements[i],
			ClickStatus:  schemas.StatusError,
			ErrorMessage: MessageNotTested,
			URLBefore:    target,
			URLAfter:     target,
		}
		e.metrics.IncTest(string(schemas.StatusError))
	}

	return results, nil
}

// runWorker provisions one session, loads the target and drains the task
// queue. A non-nil return means the slot died before testing anything;
// elements it would have handled stay in the queue for the survivors.
func (e *Engine) runWorker(ctx context.Context, id int, target string, elements []schemas.ElementInfo, tasks <-chan int, out chan<- indexed) error {
	logger := e.logger.With(zap.Int("worker_id", id))

	sess, err := e.provider.Acquire(ctx)
	if err != nil {
		e.metrics.IncProvisionFailure()
		logger.Error("Worker could not provision a session, abandoning slot.", zap.Error(err))
		return err
	}
	e.metrics.SessionOpened()
	defer func() {
		sess.Close()
		e.metrics.SessionClosed()
	}()

	if err := sess.Navigate(ctx, target, e.waitTime); err != nil {
		e.metrics.IncProvisionFailure()
		logger.Error("Worker could not load the target page, abandoning slot.", zap.Error(err))
		return err
	}

	// Chrome normalizes the URL on load, so drift checks compare against
	// what the browser reports, not the configured target.
	home, err := sess.Location(ctx)
	if err != nil {
		logger.Warn("Could not read the post-load location, using the raw target.", zap.Error(err))
		home = target
	}

	logger.Debug("Worker ready.", zap.String("home", home))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Run cancelled, worker shutting down.", zap.Error(ctx.Err()))
			return nil
		case i, ok := <-tasks:
			if !ok {
				logger.Debug("Task queue drained, worker shutting down.")
				return nil
			}
			res, newHome := e.testOne(ctx, sess, logger, target, home, elements[i])
			home = newHome
			out <- indexed{idx: i, res: res}
		}
	}
}

// testOne paces, restores the page if a previous click navigated away,
// runs the protocol under the per-element timeout and folds everything
// into a TestResult.
func (e *Engine) testOne(ctx context.Context, sess Session, logger *zap.Logger, target, home string, info schemas.ElementInfo) (schemas.TestResult, string) {
	if err := e.limiter.Wait(ctx); err != nil {
		// Cancelled before the test started.
		e.metrics.IncTest(string(schemas.StatusError))
		return schemas.TestResult{
			ElementInfo:  info,
			ClickStatus:  schemas.StatusError,
			ErrorMessage: MessageNotTested,
			URLBefore:    target,
			URLAfter:     target,
		}, home
	}

	elemCtx, cancel := context.WithTimeout(ctx, e.elementTimeout)
	defer cancel()

	started := time.Now()
	home = e.ensureOnTarget(elemCtx, sess, logger, target, home)
	outcome := e.tester.TestElement(elemCtx, sess, info)

	e.metrics.IncTest(string(outcome.Status))
	e.metrics.ObserveTestDuration(time.Since(started))

	logger.Debug("Element tested.",
		zap.String("status", string(outcome.Status)),
		zap.String("tag", info.TagName),
		zap.String("text", info.VisibleText),
	)

	return schemas.TestResult{
		ElementInfo:  info,
		ClickStatus:  outcome.Status,
		ErrorMessage: outcome.Message,
		URLBefore:    outcome.URLBefore,
		URLAfter:     outcome.URLAfter,
	}, home
}

// ensureOnTarget pulls the session back to the target page when an
// earlier click navigated it somewhere else. Returns the page location
// subsequent tests should treat as home.
func (e *Engine) ensureOnTarget(ctx context.Context, sess Session, logger *zap.Logger, target, home string) string {
	loc, err := sess.Location(ctx)
	if err != nil {
		logger.Debug("Could not read the current location before testing.", zap.Error(err))
		return home
	}
	if loc == home {
		return home
	}

	logger.Debug("Page drifted from the target, navigating back.",
		zap.String("current", loc),
		zap.String("home", home),
	)
	if err := sess.Navigate(ctx, target, renavigateSettle); err != nil {
		logger.Warn("Failed to navigate back to the target page.", zap.Error(err))
		return home
	}
	if restored, err := sess.Location(ctx); err == nil {
		return restored
	}
	return home
}

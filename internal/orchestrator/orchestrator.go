// internal/orchestrator/orchestrator.go

// Package orchestrator sequences a full audit run: provision a session,
// discover the clickable surface, optionally deep scan, fan tests out to
// the engine and publish the aggregated report. It is injected with its
// collaborators as interfaces, so the whole pipeline is testable without
// a browser.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/discovery"
	"github.com/RudraKhare/DeadClickCrawler/internal/metrics"
	"github.com/RudraKhare/DeadClickCrawler/internal/results"
)

// RunState is the currently executing phase of the audit pipeline.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateProvisioning RunState = "provisioning"
	StateDiscovering  RunState = "discovering"
	StateDeepScanning RunState = "deep_scanning"
	StateTesting      RunState = "testing"
	StateAggregating  RunState = "aggregating"
	StatePublished    RunState = "published"
)

// storeSaveTimeout bounds the report mirror write so a slow database
// cannot wedge the publish path.
const storeSaveTimeout = 30 * time.Second

// Session is the slice of a browser session the discovery phases drive.
type Session interface {
	discovery.Session
	Close()
}

// Provisioner hands out the run's discovery session.
type Provisioner interface {
	Acquire(ctx context.Context) (Session, error)
}

// ProvisionFunc adapts a plain acquire function into a Provisioner.
type ProvisionFunc func(ctx context.Context) (Session, error)

// Acquire implements Provisioner.
func (f ProvisionFunc) Acquire(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Discoverer finds the clickable surface of the loaded page.
type Discoverer interface {
	Discover(ctx context.Context, sess discovery.Session, url string, settle time.Duration, strictness schemas.Strictness, set *discovery.DedupeSet) error
	Finalize(ctx context.Context, pageURL string, set *discovery.DedupeSet) []schemas.ElementInfo
}

// DeepScanner agitates the page to reveal elements hidden behind menus,
// accordions and lazy rendering.
type DeepScanner interface {
	Expand(ctx context.Context, sess discovery.Session, strictness schemas.Strictness, set *discovery.DedupeSet) ([]schemas.ElementInfo, error)
}

// Tester runs the click protocol over every element and returns exactly
// one result per element.
type Tester interface {
	Run(ctx context.Context, target string, elements []schemas.ElementInfo) ([]schemas.TestResult, error)
}

// ReportStore mirrors the published report slot.
type ReportStore interface {
	SaveReport(ctx context.Context, report *schemas.Report) error
	LoadLatest(ctx context.Context) (*schemas.Report, error)
}

// Orchestrator owns the single-run-at-a-time audit lifecycle and the
// published report slot.
type Orchestrator struct {
	cfg        config.AuditConfig
	logger     *zap.Logger
	metrics    *metrics.Metrics
	sessions   Provisioner
	discoverer Discoverer
	scanner    DeepScanner
	tester     Tester
	store      ReportStore

	running atomic.Bool
	state   atomic.Value

	reportMu sync.Mutex
	report   *schemas.Report
}

// New wires the pipeline. The scanner and store may be nil; deep
// scanning is then skipped and the report slot lives only in memory.
func New(
	cfg config.AuditConfig,
	sessions Provisioner,
	discoverer Discoverer,
	scanner DeepScanner,
	tester Tester,
	store ReportStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if sessions == nil {
		return nil, errors.New("orchestrator: session provisioner cannot be nil")
	}
	if discoverer == nil {
		return nil, errors.New("orchestrator: discoverer cannot be nil")
	}
	if tester == nil {
		return nil, errors.New("orchestrator: tester cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("orchestrator: logger cannot be nil")
	}

	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		metrics:    m,
		sessions:   sessions,
		discoverer: discoverer,
		scanner:    scanner,
		tester:     tester,
		store:      store,
	}
	o.state.Store(StateIdle)
	return o, nil
}

// State reports the pipeline phase currently executing. Once a run
// publishes, the state stays at published until the next run starts.
func (o *Orchestrator) State() RunState {
	return o.state.Load().(RunState)
}

func (o *Orchestrator) setState(s RunState) {
	o.state.Store(s)
	o.logger.Debug("Run state changed.", zap.String("state", string(s)))
}

// Run executes one full audit. Only one run may be in flight; a second
// caller gets ErrRunInProgress instead of being queued. A failed run
// returns a *schemas.RunAbortedError and leaves the previously published
// report untouched.
func (o *Orchestrator) Run(ctx context.Context, req schemas.RunRequest) (*schemas.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}

	if !o.running.CompareAndSwap(false, true) {
		o.metrics.IncRun(metrics.OutcomeRejected)
		return nil, schemas.ErrRunInProgress
	}
	defer o.running.Store(false)

	started := time.Now()
	logger := o.logger.With(zap.String("run_id", uuid.NewString()), zap.String("url", req.URL))
	logger.Info("Audit run accepted.",
		zap.Int("wait_time_s", req.WaitTime),
		zap.String("strictness", string(req.Strictness)),
	)

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	report, err := o.execute(runCtx, logger, req)
	if err != nil {
		o.setState(StateIdle)
		o.metrics.IncRun(metrics.OutcomeAborted)
		logger.Error("Audit run aborted.", zap.Error(err))
		return nil, err
	}

	o.publish(report)
	o.metrics.IncRun(metrics.OutcomeCompleted)
	o.metrics.ObserveRunDuration(time.Since(started))
	logger.Info("Audit run completed.",
		zap.Int("elements_tested", report.ElementsTested),
		zap.Int("active_clicks", report.ActiveClicks),
		zap.Int("dead_clicks", report.DeadClicks),
		zap.Int("errors", report.Errors),
		zap.Duration("took", time.Since(started)),
	)
	return report, nil
}

// execute walks the pipeline phases and builds the report. Errors from
// provisioning, discovery and testing abort the run; a deep scan failure
// only degrades it to the surface-level element set.
func (o *Orchestrator) execute(ctx context.Context, logger *zap.Logger, req schemas.RunRequest) (*schemas.Report, error) {
	waitTime := time.Duration(req.WaitTime) * time.Second

	o.setState(StateProvisioning)
	sess, err := o.sessions.Acquire(ctx)
	if err != nil {
		return nil, &schemas.RunAbortedError{Err: err}
	}
	o.metrics.SessionOpened()
	var closeOnce sync.Once
	closeSession := func() {
		closeOnce.Do(func() {
			sess.Close()
			o.metrics.SessionClosed()
		})
	}
	defer closeSession()

	o.setState(StateDiscovering)
	set := discovery.NewDedupeSet()
	if err := o.discoverer.Discover(ctx, sess, req.URL, waitTime, req.Strictness, set); err != nil {
		return nil, &schemas.RunAbortedError{Err: err}
	}

	if o.cfg.DeepScan && o.scanner != nil {
		o.setState(StateDeepScanning)
		if _, err := o.scanner.Expand(ctx, sess, req.Strictness, set); err != nil {
			if ctx.Err() != nil {
				return nil, &schemas.RunAbortedError{Err: err}
			}
			logger.Warn("Deep scan failed, continuing with the surface element set.", zap.Error(err))
		}
	}

	elements := o.discoverer.Finalize(ctx, req.URL, set)
	// The testing pool provisions its own sessions; free this one early.
	closeSession()
	o.metrics.AddDiscovered(len(elements))
	logger.Info("Discovery finished.", zap.Int("elements", len(elements)))

	o.setState(StateTesting)
	testCtx, cancel := context.WithTimeout(ctx, o.testingBudget(len(elements)))
	defer cancel()
	tested, err := o.tester.Run(testCtx, req.URL, elements)
	if err != nil {
		return nil, &schemas.RunAbortedError{Err: err}
	}

	o.setState(StateAggregating)
	report := results.BuildReport(req.URL, len(elements), tested, time.Now().UTC())
	return &report, nil
}

// testingBudget derives the testing-phase deadline from the element
// count so a wedged page cannot hold the run open forever, while large
// surfaces still get room proportional to the work.
func (o *Orchestrator) testingBudget(elements int) time.Duration {
	workers := o.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	perElement := o.cfg.ElementTimeout
	if perElement <= 0 {
		perElement = 30 * time.Second
	}

	rounds := elements/workers + 1
	budget := time.Duration(rounds)*perElement + o.cfg.WaitTime
	if budget < 2*time.Minute {
		budget = 2 * time.Minute
	}
	return budget
}

// publish replaces the report slot and mirrors it to the store. The
// mirror write uses a background context so a shutdown mid-publish still
// persists the finished run.
func (o *Orchestrator) publish(report *schemas.Report) {
	o.reportMu.Lock()
	o.report = report
	o.reportMu.Unlock()
	o.setState(StatePublished)

	if o.store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), storeSaveTimeout)
	defer cancel()
	if err := o.store.SaveReport(saveCtx, report); err != nil {
		o.logger.Error("Failed to mirror the report to the store.", zap.Error(err))
	}
}

// LastReport returns the most recently published report, or ErrNoReport
// when no run has completed since startup and the store had nothing to
// warm from.
func (o *Orchestrator) LastReport() (*schemas.Report, error) {
	o.reportMu.Lock()
	defer o.reportMu.Unlock()
	if o.report == nil {
		return nil, schemas.ErrNoReport
	}
	return o.report, nil
}

// Warm seeds the report slot from the store so GET /results survives a
// restart. Missing rows are not an error; anything else is logged and
// the slot stays empty.
func (o *Orchestrator) Warm(ctx context.Context) {
	if o.store == nil {
		return
	}
	report, err := o.store.LoadLatest(ctx)
	if err != nil {
		if !errors.Is(err, schemas.ErrNoReport) {
			o.logger.Warn("Could not warm the report slot from the store.", zap.Error(err))
		}
		return
	}

	o.reportMu.Lock()
	o.report = report
	o.reportMu.Unlock()
	o.logger.Info("Report slot warmed from the store.",
		zap.String("url", report.URL),
		zap.Time("timestamp", report.Timestamp),
	)
}

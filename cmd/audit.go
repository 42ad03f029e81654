package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/browser"
	"github.com/RudraKhare/DeadClickCrawler/internal/clicker"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/discovery"
	"github.com/RudraKhare/DeadClickCrawler/internal/engine"
	"github.com/RudraKhare/DeadClickCrawler/internal/locator"
	"github.com/RudraKhare/DeadClickCrawler/internal/metrics"
	"github.com/RudraKhare/DeadClickCrawler/internal/observability"
	"github.com/RudraKhare/DeadClickCrawler/internal/orchestrator"
	"github.com/RudraKhare/DeadClickCrawler/internal/probe"
	"github.com/RudraKhare/DeadClickCrawler/internal/reporting"
	"github.com/RudraKhare/DeadClickCrawler/internal/store"
)

// newAuditCmd creates and configures the `audit` command.
func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit [url]",
		Short: "Runs a single click audit against a page and writes the report",
		Args:  cobra.MaximumNArgs(1),
		// Bind flags to their viper keys so command-line values override
		// the config file and environment with the right precedence.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"audit.default_url": "url",
				"audit.wait_time":   "wait",
				"audit.strictness":  "strictness",
				"audit.max_depth":   "depth",
				"audit.workers":     "workers",
				"audit.deep_scan":   "deep-scan",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			// Bind the remaining flags (output, format) under their own names.
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: runAudit,
	}

	auditCmd.Flags().String("url", "", "Target page URL. A positional argument takes precedence.")
	auditCmd.Flags().Duration("wait", 5*time.Second, "Settle time after page load before scanning.")
	auditCmd.Flags().String("strictness", "normal", "Dead click detection strictness ('strict', 'normal' or 'loose').")
	auditCmd.Flags().IntP("depth", "d", 2, "Maximum interaction depth for the deep scan.")
	auditCmd.Flags().IntP("workers", "j", 4, "Number of concurrent click testing sessions.")
	auditCmd.Flags().Bool("deep-scan", true, "Agitate the page to reveal hidden clickables before testing.")
	auditCmd.Flags().StringP("output", "o", "", "Report file path. Defaults to clickability_test_<target> in the working directory.")
	auditCmd.Flags().StringP("format", "f", "json", "Report format ('json' or 'junit').")

	return auditCmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	// Use the context passed from main (signal-aware).
	ctx := cmd.Context()
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to finalize config: %w", err)
	}

	target := cfg.Audit.DefaultURL
	if len(args) > 0 {
		target = args[0]
	}
	if target == "" {
		return errors.New("no target URL: pass one as an argument, via --url, or set audit.default_url")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	logger.Info("Starting audit.",
		zap.String("url", target),
		zap.String("strictness", cfg.Audit.Strictness),
		zap.Int("workers", cfg.Audit.Workers),
		zap.Bool("deep_scan", cfg.Audit.DeepScan),
	)

	components, err := buildComponents(ctx, cfg, nil, logger)
	if err != nil {
		components.Shutdown()
		return fmt.Errorf("failed to initialize audit components: %w", err)
	}
	defer components.Shutdown()

	req := schemas.RunRequest{
		URL:        target,
		WaitTime:   int(cfg.Audit.WaitTime / time.Second),
		Strictness: schemas.Strictness(cfg.Audit.Strictness),
	}

	report, err := components.Orchestrator.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Audit aborted gracefully.", zap.String("url", target))
			return fmt.Errorf("audit aborted by user signal")
		}
		logger.Error("Audit failed.", zap.Error(err), zap.String("url", target))
		return err
	}

	format := viper.GetString("format")
	output := viper.GetString("output")
	if output == "" {
		output = reporting.DefaultPath(target, format)
	}
	if err := writeReport(logger, report, format, output); err != nil {
		return err
	}

	fmt.Printf("\nAudit complete: %d found, %d tested, %d active, %d dead, %d errors.\n",
		report.TotalElementsFound, report.ElementsTested,
		report.ActiveClicks, report.DeadClicks, report.Errors)
	fmt.Printf("Report written to %s\n", output)

	return nil
}

// writeReport hands the published report to the configured reporter.
func writeReport(logger *zap.Logger, report *schemas.Report, format, output string) error {
	reporter, err := reporting.New(format, output)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// components holds the initialized services behind one audit pipeline.
type components struct {
	Manager      *browser.Manager
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
}

// Shutdown gracefully closes every initialized component.
func (c *components) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.Manager != nil {
		if err := c.Manager.Shutdown(shutdownCtx); err != nil {
			observability.GetLogger().Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// buildComponents handles dependency injection for the audit pipeline.
// The metrics registry may be nil for one-shot runs.
func buildComponents(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*components, error) {
	c := &components{}

	// 1. Browser sessions
	c.Manager = browser.NewManager(cfg.Browser, logger)

	// 2. Optional link prober for anchor status codes
	var prober *probe.Prober
	if cfg.Probe.Enabled {
		p, err := probe.New(cfg.Probe, cfg.Browser, m, logger)
		if err != nil {
			return c, fmt.Errorf("failed to initialize link prober: %w", err)
		}
		prober = p
	}

	// 3. Discovery and deep scanning
	discoverer := discovery.New(prober, logger)
	var scanner orchestrator.DeepScanner
	if cfg.Audit.DeepScan {
		scanner = discovery.NewDeepScanner(discoverer, cfg.Audit, logger)
	}

	// 4. Click testing pool
	loc := locator.New(cfg.Audit, logger)
	tester := clicker.New(cfg.Audit, loc, logger)
	eng := engine.New(cfg.Audit, engine.ProvisionFunc(func(ctx context.Context) (engine.Session, error) {
		sess, err := c.Manager.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}), tester, m, logger)

	// 5. Optional report slot mirror
	var reportStore orchestrator.ReportStore
	if cfg.Store.DSN != "" {
		st, err := store.Connect(ctx, cfg.Store.DSN, logger)
		if err != nil {
			return c, fmt.Errorf("failed to connect to report store: %w", err)
		}
		c.Store = st
		if err := st.Migrate(ctx); err != nil {
			return c, fmt.Errorf("failed to migrate report store: %w", err)
		}
		reportStore = st
	}

	// 6. Orchestrator
	sessions := orchestrator.ProvisionFunc(func(ctx context.Context) (orchestrator.Session, error) {
		sess, err := c.Manager.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	})

	orch, err := orchestrator.New(cfg.Audit, sessions, discoverer, scanner, eng, reportStore, m, logger)
	if err != nil {
		return c, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	c.Orchestrator = orch

	return c, nil
}

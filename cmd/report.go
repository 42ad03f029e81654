// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/observability"
	"github.com/RudraKhare/DeadClickCrawler/internal/reporting"
	"github.com/RudraKhare/DeadClickCrawler/internal/store"
)

// reportSource is the slice of the store the report command reads.
type reportSource interface {
	LoadLatest(ctx context.Context) (*schemas.Report, error)
}

// storeProvider opens the report store. The indirection lets tests
// inject a canned source instead of a live database connection.
type storeProvider interface {
	Open(ctx context.Context, cfg *config.Config) (reportSource, func(), error)
}

// defaultStoreProvider is the production implementation; it connects to
// the PostgreSQL mirror named by store.dsn.
type defaultStoreProvider struct{}

func newStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Open(ctx context.Context, cfg *config.Config) (reportSource, func(), error) {
	if cfg.Store.DSN == "" {
		return nil, nil, errors.New("no report store configured: set store.dsn or DEADCLICK_STORE_DSN")
	}

	st, err := store.Connect(ctx, cfg.Store.DSN, observability.GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to report store: %w", err)
	}
	return st, st.Close, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Exports the most recent stored audit report",
		Long: `Loads the report published by the last completed run from the configured
store and writes it in the requested format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			return runReportExport(cmd.Context(), observability.GetLogger(), cfg, outputPath, format, provider)
		},
	}

	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatJSON, "Report format ('json' or 'junit').")

	return reportCmd
}

// runReportExport contains the core, testable logic for the export.
func runReportExport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	outputPath, format string,
	provider storeProvider,
) error {
	source, cleanup, err := provider.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	report, err := source.LoadLatest(ctx)
	if err != nil {
		if errors.Is(err, schemas.ErrNoReport) {
			return errors.New("no report stored yet: run an audit first")
		}
		return fmt.Errorf("failed to load the stored report: %w", err)
	}

	if err := writeReport(logger, report, format, outputPath); err != nil {
		return err
	}

	logger.Info("Stored report exported.",
		zap.String("url", report.URL),
		zap.String("format", format),
		zap.String("output", outputPath))
	return nil
}

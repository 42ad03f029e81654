package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/metrics"
	"github.com/RudraKhare/DeadClickCrawler/internal/observability"
	"github.com/RudraKhare/DeadClickCrawler/internal/server"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API and runs audits on request",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"server.addr":       "addr",
				"store.dsn":         "store-dsn",
				"audit.default_url": "url",
				"audit.workers":     "workers",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: runServe,
	}

	serveCmd.Flags().String("addr", ":8000", "Listen address for the HTTP API.")
	serveCmd.Flags().String("store-dsn", "", "Postgres DSN for mirroring the report slot across restarts.")
	serveCmd.Flags().String("url", "", "Default audit target when a run request names none.")
	serveCmd.Flags().IntP("workers", "j", 4, "Number of concurrent click testing sessions.")

	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to finalize config: %w", err)
	}

	m := metrics.New()

	components, err := buildComponents(ctx, cfg, m, logger)
	if err != nil {
		components.Shutdown()
		return fmt.Errorf("failed to initialize audit components: %w", err)
	}
	defer components.Shutdown()

	// Reload the report slot from the store so GET /results works across
	// restarts.
	if components.Store != nil {
		components.Orchestrator.Warm(ctx)
	}

	srv, err := server.New(*cfg, components.Orchestrator, m, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize the HTTP API: %w", err)
	}

	logger.Info("Serving the audit API.", zap.String("addr", cfg.Server.Addr))
	return srv.Start(ctx)
}

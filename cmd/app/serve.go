package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SignalScan/internal/di"
	"SignalScan/internal/domain/models"
	"SignalScan/internal/usecase"

	"github.com/spf13/cobra"
)

var startupKind string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the scan API, the websocket progress stream and /metrics.

Examples:
  signalscan serve --config config/config.yaml
  signalscan serve --scan-on-start macd_divergence`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&startupKind, "scan-on-start", "", "start a scan of this kind once the server is up")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if startupKind != "" {
		if err := app.Session().Start(context.Background(), models.Kind(startupKind), usecase.Override{}); err != nil {
			return fmt.Errorf("startup scan: %w", err)
		}
	}

	return app.Run(ctx)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"SignalScan/internal/di"
	"SignalScan/internal/domain/models"
	"SignalScan/internal/service/marketapi"
	"SignalScan/internal/usecase"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	scanKind           string
	scanMaxInstruments int
	scanMinVolume      float64
	scanInterval       string
	scanLimit          int
	scanJSON           bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print the bucket tables",
	Long: `Run a single scan in the foreground. Ctrl-C stops the scan before the next
instrument and prints what was classified so far.

Examples:
  signalscan scan --kind ema_cross
  signalscan scan --kind macd_divergence --interval 4h --limit 20
  signalscan scan --kind ema_cross --json > result.json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanKind, "kind", string(models.KindEMACross), "scan kind (ema_cross|macd_divergence)")
	scanCmd.Flags().IntVar(&scanMaxInstruments, "max-instruments", 0, "override the universe size")
	scanCmd.Flags().Float64Var(&scanMinVolume, "min-volume", 0, "override the minimum 24h quote volume")
	scanCmd.Flags().StringVar(&scanInterval, "interval", "", "override the kline interval")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "rows per bucket, 0 prints all")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the result as JSON")
}

func runScan(cmd *cobra.Command, _ []string) error {
	kind := models.Kind(scanKind)
	if !kind.Valid() {
		return fmt.Errorf("unknown kind %q", scanKind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	session, cleanup, err := di.InitializeSession(cfg)
	if err != nil {
		return fmt.Errorf("session initialization failed: %w", err)
	}
	defer cleanup()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			if session.Stop() {
				fmt.Fprintln(os.Stderr, "\nstopping after in-flight requests...")
			}
		}
	}()

	var progress usecase.ProgressFunc
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progress = progressPrinter(os.Stderr)
	}

	override := usecase.Override{
		MaxInstruments: scanMaxInstruments,
		MinQuoteVolume: scanMinVolume,
		Interval:       scanInterval,
	}
	result, err := session.Run(context.Background(), kind, override, progress)
	if progress != nil {
		fmt.Fprintln(os.Stderr)
	}

	out := cmd.OutOrStdout()
	if result != nil {
		if scanJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(result); encErr != nil {
				return encErr
			}
		} else {
			renderResult(out, result, scanLimit)
		}
	}

	if errors.Is(err, marketapi.ErrEndpointsExhausted) {
		return fmt.Errorf("scan aborted, market data endpoints unavailable: %w", err)
	}
	return err
}

func progressPrinter(w io.Writer) usecase.ProgressFunc {
	return func(done, total int, symbol string) {
		pct := 0.0
		if total > 0 {
			pct = float64(done) * 100 / float64(total)
		}
		fmt.Fprintf(w, "\r%4d/%-4d %5.1f%%  %-16s", done, total, pct, symbol)
	}
}

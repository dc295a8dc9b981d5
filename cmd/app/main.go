package main

import (
	"fmt"
	"os"

	"SignalScan/pkg/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "signalscan",
	Short: "Market signal scanner",
	Long: `SignalScan pulls 24h ticker statistics and klines from a ranked list of
market-data endpoints and classifies every liquid instrument into signal buckets
(EMA cross proximity, MACD divergence).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) {
		// fall back to defaults and SIGNALSCAN_* variables
		path = ""
	}
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

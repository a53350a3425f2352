package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/app"
	"github.com/wyhe/prism/internal/config"
	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "PRISM - Multi-market data aggregation layer",
	Long: `PRISM aggregates equity data across A-share, Hong Kong and US markets.
It normalizes symbols, routes each request through an ordered provider
chain and caches results according to their volatility.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, builds the logger and assembles the app.
func setup() (*app.App, *zap.Logger, *config.Config, error) {
	cfg := config.Defaults()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Merge(cfg, loaded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if debug {
		level, format = "debug", "console"
	}
	log, err := logger.New(level, format)
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("assembling app: %w", err)
	}
	return a, log, cfg, nil
}

// parseMarket maps the --market flag to a hint. Empty means infer from the
// symbol.
func parseMarket(s string) (core.Market, error) {
	switch s {
	case "":
		return "", nil
	case "A", "a":
		return core.MarketA, nil
	case "HK", "hk":
		return core.MarketHK, nil
	case "US", "us":
		return core.MarketUS, nil
	}
	return "", fmt.Errorf("unknown market %q (want A, HK or US)", s)
}

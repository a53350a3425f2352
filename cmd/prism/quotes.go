package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/manager"
)

var (
	quotesStart    string
	quotesEnd      string
	quotesInterval string
	quotesMarket   string
)

var quotesCmd = &cobra.Command{
	Use:   "quotes SYMBOL",
	Short: "Fetch historical bars for a symbol",
	Long: `Fetches daily bars for the given range, or intraday bars when
--interval is set (1m, 5m, 15m, 30m, 1h). Symbols may be raw ("600519",
"AAPL", "00700") or fully qualified ("600519.SH").`,
	Args: cobra.ExactArgs(1),
	RunE: runQuotes,
}

func init() {
	quotesCmd.Flags().StringVar(&quotesStart, "start", "", "range start (YYYY-MM-DD), default 30 days ago")
	quotesCmd.Flags().StringVar(&quotesEnd, "end", "", "range end (YYYY-MM-DD), default today")
	quotesCmd.Flags().StringVar(&quotesInterval, "interval", "", "intraday interval; empty means daily bars")
	quotesCmd.Flags().StringVar(&quotesMarket, "market", "", "market hint (A, HK, US)")
	rootCmd.AddCommand(quotesCmd)
}

func runQuotes(cmd *cobra.Command, args []string) error {
	a, log, _, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	hint, err := parseMarket(quotesMarket)
	if err != nil {
		return err
	}
	start, end, err := parseRange(quotesStart, quotesEnd)
	if err != nil {
		return err
	}

	q := manager.QuoteQuery{
		Symbol:   args[0],
		Market:   hint,
		Start:    start,
		End:      end,
		Interval: quotesInterval,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var result *manager.QuoteResult
	if quotesInterval == "" {
		result, err = a.Manager().DailyQuotes(ctx, q)
	} else {
		result, err = a.Manager().MinuteQuotes(ctx, q)
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

// parseRange parses the start/end flags, defaulting to the last 30 days.
// Dates are interpreted in China Standard Time, the reference zone for
// trading-day boundaries.
func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	end := time.Now().In(core.CST)
	if endStr != "" {
		t, err := time.ParseInLocation("2006-01-02", endStr, core.CST)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --end: %w", err)
		}
		end = t
	}
	start := end.AddDate(0, 0, -30)
	if startStr != "" {
		t, err := time.ParseInLocation("2006-01-02", startStr, core.CST)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --start: %w", err)
		}
		start = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--start is after --end")
	}
	return start, end, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

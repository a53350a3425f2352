package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var realtimeMarket string

var realtimeCmd = &cobra.Command{
	Use:   "realtime SYMBOL",
	Short: "Fetch the latest quote snapshot for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runRealtime,
}

func init() {
	realtimeCmd.Flags().StringVar(&realtimeMarket, "market", "", "market hint (A, HK, US)")
	rootCmd.AddCommand(realtimeCmd)
}

func runRealtime(cmd *cobra.Command, args []string) error {
	a, log, _, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	hint, err := parseMarket(realtimeMarket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := a.Manager().Realtime(ctx, args[0], hint)
	if err != nil {
		return err
	}
	return printJSON(result)
}

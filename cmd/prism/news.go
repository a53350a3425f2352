package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	newsMarket string
	newsSince  time.Duration
)

var newsCmd = &cobra.Command{
	Use:   "news SYMBOL",
	Short: "Fetch recent news for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runNews,
}

func init() {
	newsCmd.Flags().StringVar(&newsMarket, "market", "", "market hint (A, HK, US)")
	newsCmd.Flags().DurationVar(&newsSince, "since", 24*time.Hour, "look-back window")
	rootCmd.AddCommand(newsCmd)
}

func runNews(cmd *cobra.Command, args []string) error {
	a, log, _, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	hint, err := parseMarket(newsMarket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := a.Manager().News(ctx, args[0], hint, time.Now().Add(-newsSince))
	if err != nil {
		return err
	}
	return printJSON(result)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wyhe/prism/internal/core"
)

var (
	financialsMarket string
	financialsType   string
)

var financialsCmd = &cobra.Command{
	Use:   "financials SYMBOL",
	Short: "Fetch financial statements for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinancials,
}

func init() {
	financialsCmd.Flags().StringVar(&financialsMarket, "market", "", "market hint (A, HK, US)")
	financialsCmd.Flags().StringVar(&financialsType, "type", "annual", "report type: annual or quarterly")
	rootCmd.AddCommand(financialsCmd)
}

func runFinancials(cmd *cobra.Command, args []string) error {
	a, log, _, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	hint, err := parseMarket(financialsMarket)
	if err != nil {
		return err
	}

	var reportType core.ReportType
	switch financialsType {
	case "annual":
		reportType = core.ReportAnnual
	case "quarterly":
		reportType = core.ReportQuarterly
	default:
		return fmt.Errorf("unknown report type %q (want annual or quarterly)", financialsType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := a.Manager().Financials(ctx, args[0], hint, reportType)
	if err != nil {
		return err
	}
	return printJSON(result)
}

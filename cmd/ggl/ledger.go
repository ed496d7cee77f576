package main

import (
	"context"
	"errors"

	"ggloracle/internal/ledger"

	"github.com/spf13/cobra"
)

var (
	errNoContractsToWatch = errors.New("--watch needs --tokenizer and --grammar")
	errLedgerDisabled     = errors.New("ledger is not enabled (set ledger.enabled or GGL_LEDGER)")
)

// ledgerCmd groups ledger commands
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the verdict ledger",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show verdict statistics for an ABI hash",
	Long: `Prints counts by stage and by failure code, plus the mean score, for every
verdict recorded under the current ABI hash (or --abi).`,
	Args: cobra.NoArgs,
	RunE: runLedgerStats,
}

func init() {
	ledgerStatsCmd.Flags().String("abi", "", "ABI hash to report on (default: current contracts)")
	ledgerCmd.AddCommand(ledgerStatsCmd)
}

func runLedgerStats(cmd *cobra.Command, args []string) error {
	if !cfg.Ledger.Enabled {
		return usageError(errLedgerDisabled)
	}

	hash, _ := cmd.Flags().GetString("abi")
	if hash == "" {
		abi, err := loadABI()
		if err != nil {
			return usageError(err)
		}
		hash = abi.Hash
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	stats, err := l.Stats(context.Background(), hash)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

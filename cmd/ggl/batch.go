package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"ggloracle/internal/batch"
	"ggloracle/internal/ledger"
	"ggloracle/internal/oracle"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// batchCmd verifies many payloads
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify many payloads concurrently",
	Long: `Verifies every item of a JSONL file, or every file matching a glob, against
one snapshot of the contracts.

Input lines look like {"id": "...", "text": "...", "want_lower": true}; id and
want_lower are optional. Outcomes are written as JSONL in input order and a
summary goes to stderr. Exit status is 1 if any item is illegal.

With the ledger enabled, verdicts already recorded for the same ABI hash are
reused and fresh ones are recorded.

Examples:
  ggl batch --in samples.jsonl --out verdicts.jsonl
  ggl batch --glob 'out/**/*.ggl' --lower`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().String("in", "", "JSONL input file (- for stdin)")
	batchCmd.Flags().String("glob", "", "Verify every file matching this pattern (** allowed)")
	batchCmd.Flags().StringP("out", "o", "", "Write outcomes here instead of stdout")
	batchCmd.Flags().Int("concurrency", 0, "Worker count (default from config)")
	batchCmd.Flags().Bool("lower", false, "Lower items that do not say otherwise")
}

func runBatch(cmd *cobra.Command, args []string) error {
	in, _ := cmd.Flags().GetString("in")
	glob, _ := cmd.Flags().GetString("glob")
	out, _ := cmd.Flags().GetString("out")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	lower := wantLower(cmd)

	items, err := batchItems(cmd, in, glob)
	if err != nil {
		return usageError(err)
	}

	abi, err := loadABI()
	if err != nil {
		return usageError(err)
	}

	if concurrency < 1 {
		concurrency = cfg.Batch.Concurrency
	}
	runner := batch.NewRunner(oracle.New(abi), concurrency)
	runner.WantLower = lower

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer l.Close()
		runner.Ledger = l
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetBatchTimeout())
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting batch",
		zap.String("run_id", runner.RunID),
		zap.Int("items", len(items)),
		zap.Int("concurrency", runner.Concurrency))

	outcomes, err := runner.Run(ctx, items)
	if err != nil {
		return fmt.Errorf("batch %s: %w", runner.RunID, err)
	}

	if err := writeOutcomes(cmd, out, outcomes); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), runner.RunID, batch.Summarize(outcomes))

	if !batch.AllOK(outcomes) {
		return &exitError{code: 1}
	}
	return nil
}

func batchItems(cmd *cobra.Command, in, glob string) ([]batch.Item, error) {
	switch {
	case in != "" && glob != "":
		return nil, errors.New("give either --in or --glob, not both")
	case glob != "":
		return batch.ItemsFromGlob(glob)
	case in == "-":
		return batch.ReadJSONL(cmd.InOrStdin())
	case in != "":
		f, err := os.Open(in)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		return batch.ReadJSONL(f)
	default:
		return nil, errors.New("one of --in or --glob is required")
	}
}

func writeOutcomes(cmd *cobra.Command, path string, outcomes []batch.Outcome) error {
	if path == "" || path == "-" {
		return batch.WriteJSONL(cmd.OutOrStdout(), outcomes)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := batch.WriteJSONL(f, outcomes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, runID string, s batch.Summary) {
	fmt.Fprintf(w, "run %s: %d/%d ok, mean score %.4f, mean penalty %.4f, %d cached\n",
		runID, s.OK, s.Total, s.MeanScore, s.MeanPenalty, s.Cached)

	codes := make([]string, 0, len(s.ByCode))
	for code := range s.ByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %-24s %d\n", code, s.ByCode[code])
	}
}

package main

import (
	"context"
	"fmt"

	"ggloracle/internal/oracle"
	"ggloracle/internal/regression"

	"github.com/spf13/cobra"
)

// regressCmd runs a regression battery
var regressCmd = &cobra.Command{
	Use:   "regress [BATTERY]",
	Short: "Run a regression battery of expected verdicts",
	Long: `Verifies every case of a YAML battery and compares the verdict with the
expected fields. BATTERY defaults to .ggl/battery.yaml.

Example battery:
  version: 1
  cases:
    - id: hello
      text: "<GGL>hello</GGL>"
      expect: {ok: true, score: 0.9}
    - id: sample
      type: file
      file: samples/one.ggl
      lower: true
      expect: {stage: legal, code: E_LEGAL}

Exit status is 1 if any case does not match.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegress,
}

func init() {
	rootCmd.AddCommand(regressCmd)
}

func runRegress(cmd *cobra.Command, args []string) error {
	path := regression.DefaultBatteryPath(".")
	if len(args) == 1 {
		path = args[0]
	}

	b, err := regression.LoadBattery(path)
	if err != nil {
		return usageError(err)
	}
	abi, err := loadABI()
	if err != nil {
		return usageError(err)
	}

	results, err := regression.RunBattery(context.Background(), oracle.New(abi), b)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	passed := 0
	for _, r := range results {
		if r.Success {
			passed++
			fmt.Fprintf(w, "PASS %s\n", r.CaseID)
			continue
		}
		fmt.Fprintf(w, "FAIL %s\n", r.CaseID)
		if r.Error != "" {
			fmt.Fprintf(w, "     %s\n", r.Error)
		}
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "     %s\n", m)
		}
	}
	fmt.Fprintf(w, "%d/%d cases passed (abi %s)\n", passed, len(b.Cases), abi.Hash)

	if !regression.Passed(results) {
		return &exitError{code: 1}
	}
	return nil
}

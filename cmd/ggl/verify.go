package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ggloracle/internal/oracle"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// verifyCmd checks a single payload
var verifyCmd = &cobra.Command{
	Use:   "verify [TEXT | -]",
	Short: "Verify one payload and print its verdict",
	Long: `Runs the full pipeline on one payload and prints the verdict as JSON.

The payload is TEXT, the contents of --file, or stdin when TEXT is - or
omitted. Exit status is 0 when the payload is legal, 1 when it is not, and 2
when the arguments or the contracts are unusable.

Examples:
  ggl verify '<GGL>hello</GGL>'
  ggl verify --lower --file out.txt
  generator | ggl verify -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().Bool("lower", false, "Also lower the payload to IR")
	verifyCmd.Flags().StringP("file", "f", "", "Read the payload from a file")
}

func runVerify(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	lower := wantLower(cmd)

	text, err := verifyInput(cmd, file, args)
	if err != nil {
		return usageError(err)
	}

	abi, err := loadABI()
	if err != nil {
		return usageError(err)
	}

	res := oracle.New(abi).Verify(text, lower)
	logger.Debug("Verified payload",
		zap.String("stage", res.Stage.String()),
		zap.String("code", res.Code),
		zap.Float64("score", res.Score))

	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.OK {
		return &exitError{code: 1}
	}
	return nil
}

func verifyInput(cmd *cobra.Command, file string, args []string) (string, error) {
	if file != "" {
		if len(args) > 0 {
			return "", errors.New("give either --file or TEXT, not both")
		}
		data, err := readInput(cmd, file)
		return string(data), err
	}
	if len(args) == 0 || args[0] == "-" {
		data, err := readAll(cmd.InOrStdin())
		return string(data), err
	}
	return args[0], nil
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// wantLower returns --lower when it was given, else the configured default,
// so --lower=false can turn off a configured want_lower.
func wantLower(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("lower") {
		lower, _ := cmd.Flags().GetBool("lower")
		return lower
	}
	return cfg.Oracle.WantLower
}

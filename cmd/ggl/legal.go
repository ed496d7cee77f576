package main

import (
	"errors"
	"fmt"

	"ggloracle/internal/ggl"
	"ggloracle/internal/value"

	"github.com/spf13/cobra"
)

// legalCmd checks an AST produced by an external parser
var legalCmd = &cobra.Command{
	Use:   "legal --ast FILE",
	Short: "Check an externally parsed AST against the grammar contract",
	Long: `Reads an AST document {"type": "...", "body": "..."} and runs only the
grammar contract's legality checks on it: AST type, non-empty body and
max_length. FILE may be - for stdin.

Exit status is 0 when legal, 1 when not, 2 on usage or contract errors.`,
	Args: cobra.NoArgs,
	RunE: runLegal,
}

// legalReport is the verdict printed by the legal command.
type legalReport struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message"`
	ABIHash string `json:"abi_hash"`
}

func init() {
	legalCmd.Flags().String("ast", "", "AST JSON document (- for stdin)")
	rootCmd.AddCommand(legalCmd)
}

func runLegal(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("ast")
	if path == "" {
		return usageError(errors.New("--ast is required"))
	}

	data, err := readInput(cmd, path)
	if err != nil {
		return usageError(err)
	}
	doc, err := value.Parse(data)
	if err != nil {
		return usageError(fmt.Errorf("invalid AST document: %w", err))
	}

	abi, err := loadABI()
	if err != nil {
		return usageError(err)
	}

	report := legalReport{OK: true, Code: ggl.CodeOK, Message: "legal", ABIHash: abi.Hash}
	ast, err := ggl.DecodeAST(doc)
	if err == nil {
		err = ggl.CheckLegality(ast, abi.Grammar)
	}
	if err != nil {
		var gerr *ggl.Error
		if !errors.As(err, &gerr) {
			return err
		}
		report = legalReport{Code: gerr.Code, Detail: gerr.Detail, Message: gerr.Message, ABIHash: abi.Hash}
	}

	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.OK {
		return &exitError{code: 1}
	}
	return nil
}

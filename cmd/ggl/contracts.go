package main

import (
	"fmt"
	"os"

	"ggloracle/internal/canon"
	"ggloracle/internal/contract"
	"ggloracle/internal/value"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// hashCmd prints the ABI hash of the configured contracts
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the ABI hash of the configured contracts",
	Long: `Loads the tokenizer and grammar contracts and prints the hash that
identifies them. With no contracts configured the hash of two empty contracts
is printed.`,
	Args: cobra.NoArgs,
	RunE: runHash,
}

// canonCmd prints the canonical form of a JSON document
var canonCmd = &cobra.Command{
	Use:   "canon FILE",
	Short: "Print the canonical form of a JSON document",
	Long: `Prints the canonical serialization of FILE: object keys sorted by
codepoint, no insignificant whitespace, integers without exponent. Use - for
stdin. With --hash the SHA-256 of the canonical bytes is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runCanon,
}

func init() {
	canonCmd.Flags().Bool("hash", false, "Print the SHA-256 of the canonical bytes")
}

// loadABI loads the configured contracts, or the empty pair when none are
// configured, and checks the pinned hash.
func loadABI() (*contract.ABI, error) {
	var abi *contract.ABI
	if cfg.HasContractFiles() {
		loaded, err := contract.LoadFiles(cfg.Contracts.TokenizerPath, cfg.Contracts.GrammarPath)
		if err != nil {
			return nil, err
		}
		abi = loaded
	} else {
		abi = contract.Default()
	}
	if err := abi.Pin(cfg.Contracts.PinnedHash); err != nil {
		return nil, err
	}
	logger.Debug("ABI ready", zap.String("hash", abi.Hash))
	return abi, nil
}

func runHash(cmd *cobra.Command, args []string) error {
	abi, err := loadABI()
	if err != nil {
		return usageError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), abi.Hash)
	return nil
}

func runCanon(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return usageError(err)
	}
	v, err := value.Parse(data)
	if err != nil {
		return usageError(fmt.Errorf("%s: %w", args[0], err))
	}

	b := canon.Bytes(v)
	if asHash, _ := cmd.Flags().GetBool("hash"); asHash {
		fmt.Fprintln(cmd.OutOrStdout(), canon.Hash(b))
		return nil
	}
	_, err = cmd.OutOrStdout().Write(append(b, '\n'))
	return err
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return readAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

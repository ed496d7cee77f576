package main

import (
	"errors"
	"fmt"
	"os"

	"ggloracle/internal/config"
	"ggloracle/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose       bool
	configPath    string
	tokenizerPath string
	grammarPath   string
	pinHash       string

	// Logger
	logger *zap.Logger

	// Loaded configuration, flags applied
	cfg *config.Config
)

// exitError carries a process exit code. A nil err means the command
// already reported what went wrong.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// usageError marks err as a usage or contract-loading failure (exit 2).
func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ggl",
	Short: "GGL legality oracle",
	Long: `ggl checks generator output against a tokenizer contract and a grammar
contract and reports a graded verdict.

The pipeline runs boundary -> tokenize -> parse -> legal -> [lower]. The first
failing stage ends the run; the score is the summed weight of the stages that
passed before it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadSettings(); err != nil {
			return usageError(err)
		}
		if err := setupLogging(); err != nil {
			return usageError(err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// loadSettings reads the config file and applies the global flags on top.
func loadSettings() error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if tokenizerPath != "" {
		loaded.Contracts.TokenizerPath = tokenizerPath
	}
	if grammarPath != "" {
		loaded.Contracts.GrammarPath = grammarPath
	}
	if pinHash != "" {
		loaded.Contracts.PinnedHash = pinHash
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = loaded
	return nil
}

// setupLogging builds the root logger from the logging section and shares it
// with the category loggers. --verbose forces debug_mode on at debug level.
// With debug_mode off the root logger only reports warnings and above.
func setupLogging() error {
	lc := cfg.Logging.ToLogging()
	if verbose {
		lc.DebugMode = true
		lc.Level = "debug"
	}

	root := lc
	if !root.DebugMode {
		if lvl, err := zapcore.ParseLevel(root.Level); err == nil && lvl < zapcore.WarnLevel {
			root.Level = "warn"
		}
	}
	l, err := logging.NewLogger(root)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	logging.Attach(logger, lc)

	logging.Boot("config %s resolved: contracts from files=%t, ledger=%t", configPath, cfg.HasContractFiles(), cfg.Ledger.Enabled)
	logging.BootDebug("tokenizer=%q grammar=%q pin=%q", cfg.Contracts.TokenizerPath, cfg.Contracts.GrammarPath, cfg.Contracts.PinnedHash)
	return nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVar(&tokenizerPath, "tokenizer", "", "Tokenizer contract JSON (or set GGL_TOKENIZER_ABI)")
	rootCmd.PersistentFlags().StringVar(&grammarPath, "grammar", "", "Grammar contract JSON (or set GGL_GRAMMAR_ABI)")
	rootCmd.PersistentFlags().StringVar(&pinHash, "pin", "", "Expected ABI hash (or set GGL_ABI_HASH)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	// Add commands to root
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(canonCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	os.Exit(exitCode(err))
}

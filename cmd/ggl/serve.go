package main

import (
	"context"
	"os/signal"
	"syscall"

	"ggloracle/internal/contract"
	"ggloracle/internal/ledger"
	"ggloracle/internal/oracle"
	"ggloracle/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd runs the HTTP surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the oracle over HTTP",
	Long: `Serves the oracle over HTTP until interrupted.

Routes:
  POST /api/verify   {"text": "...", "want_lower": false}
  POST /api/batch    {"items": [...]}
  GET  /api/abi      current ABI hash and contracts
  GET  /healthz
  GET  /metrics      prometheus

With --watch the contract files are reloaded when they change. A reload that
fails or breaks the pinned hash keeps the previous contracts.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("watch", false, "Reload contracts when their files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	watch := cfg.Contracts.Watch
	if cmd.Flags().Changed("watch") {
		watch, _ = cmd.Flags().GetBool("watch")
	}
	if watch && !cfg.HasContractFiles() {
		return usageError(errNoContractsToWatch)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		source   contract.Source
		reloader *contract.Reloader
	)
	if watch {
		r, err := contract.NewReloader(cfg.Contracts.TokenizerPath, cfg.Contracts.GrammarPath, cfg.Contracts.PinnedHash)
		if err != nil {
			return usageError(err)
		}
		reloader = r
		source = r
	} else {
		abi, err := loadABI()
		if err != nil {
			return usageError(err)
		}
		source = abi
	}

	opts := server.Options{
		WantLower:    cfg.Oracle.WantLower,
		Concurrency:  cfg.Batch.Concurrency,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer l.Close()
		opts.Ledger = l
	}

	srv := server.New(oracle.New(source), opts)
	if reloader != nil {
		reloader.OnReload(func(abi *contract.ABI) {
			srv.OnABIChange(abi)
			st := reloader.Stats()
			logger.Info("Contracts reloaded",
				zap.String("hash", abi.Hash),
				zap.Int("reloads", st.Reloads),
				zap.Int("failures", st.Failures))
		})
		if err := reloader.Start(ctx); err != nil {
			return err
		}
		defer reloader.Stop()
	}

	logger.Info("Serving", zap.String("addr", addr), zap.Bool("watch", watch))
	return srv.ListenAndServe(ctx, addr, cfg.GetReadTimeout())
}

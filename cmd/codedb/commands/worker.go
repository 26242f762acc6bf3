package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/config"
	"github.com/codescope/codedb/pkg/dbclient"
	"github.com/codescope/codedb/pkg/indexer"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background indexing worker",
	Long: `Run the background indexing worker against a running daemon. The
worker polls for files flagged for re-indexing and drains them through
the daemon's composite index operation, recording per-cycle statistics.

Examples:
  codedb worker
  codedb worker --config /etc/codedb/codedb.yaml`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := dbclient.Connect(ctx, cfg.Server.SocketPath)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = db.Close() }()

	w := indexer.New(indexer.Config{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
	}, db)
	w.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", "signal", sig.String())

	w.Stop()
	return nil
}

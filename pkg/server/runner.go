package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/driver/sqlite"
	"github.com/codescope/codedb/pkg/journal"
)

// EnvDriverMarker is set in the server process environment so child
// processes and diagnostics can identify the driver daemon.
const EnvDriverMarker = "CODE_ANALYSIS_DB_DRIVER"

// RunnerOptions configure one driver daemon run.
type RunnerOptions struct {
	// DriverType selects the storage engine.
	DriverType driver.Type

	// DriverConfig is the engine configuration.
	DriverConfig driver.Config

	// Server holds the socket and queue tunables.
	Server Config
}

// NewDriver builds the configured storage engine. The journal is enabled
// when the config carries a query log path.
func NewDriver(opts RunnerOptions) (driver.Driver, error) {
	switch opts.DriverType {
	case driver.TypeSQLite:
		jrnl, err := buildJournal(opts.DriverConfig)
		if err != nil {
			return nil, err
		}
		return sqlite.New(opts.DriverConfig, jrnl, nil), nil
	case driver.TypePostgres, driver.TypeMySQL:
		return nil, fmt.Errorf("%w: %s is not implemented", driver.ErrUnsupportedDriver, opts.DriverType)
	default:
		return nil, fmt.Errorf("%w: %q", driver.ErrUnsupportedDriver, opts.DriverType)
	}
}

func buildJournal(cfg driver.Config) (journal.Journal, error) {
	if cfg.QueryLogPath == "" {
		return journal.NewNullJournal(), nil
	}
	return journal.NewFileJournal(cfg.QueryLogPath,
		journal.WithMaxBytes(cfg.QueryLogMaxBytes),
		journal.WithBackupCount(cfg.QueryLogBackups))
}

// Run connects the driver, starts the server, and blocks until SIGINT or
// SIGTERM. On shutdown the listener drains before the driver disconnects,
// so in-flight requests finish against a live database.
func Run(opts RunnerOptions) error {
	_ = os.Setenv(EnvDriverMarker, "1")

	drv, err := NewDriver(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = drv.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect driver: %w", err)
	}
	defer func() {
		if err := drv.Disconnect(); err != nil {
			logger.Warn("Driver disconnect failed", logger.KeyError, err)
		}
	}()

	srv := New(opts.Server, drv)
	if err := srv.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", "signal", sig.String())

	srv.Stop()
	return nil
}

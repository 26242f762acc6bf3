package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/config"
	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/metrics"
	"github.com/codescope/codedb/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [driver_type driver_config_json socket_path [log_path] [queue_max]]",
	Short: "Run the driver daemon",
	Long: `Run the driver daemon serving JSON-RPC over a Unix domain socket.

Without positional arguments the daemon is configured from the config
file. Parent processes that spawn the daemon directly pass positional
arguments instead:

  codedb serve sqlite '{"path":"/var/lib/codedb/db.sqlite"}' /tmp/codedb.sock

Examples:
  # From config file
  codedb serve --config /etc/codedb/codedb.yaml

  # Spawned with explicit arguments
  codedb serve sqlite '{"path":"analysis.db"}' /tmp/codedb.sock daemon.log 500`,
	Args: cobra.RangeArgs(0, 5),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return serveFromArgs(args)
	}

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

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		go serveMetrics(cfg.Metrics.ListenAddr)
	}

	return server.Run(server.RunnerOptions{
		DriverType:   driver.Type(cfg.Database.Driver),
		DriverConfig: cfg.Database.DriverConfig(),
		Server: server.Config{
			SocketPath:     cfg.Server.SocketPath,
			QueueMaxSize:   cfg.Server.QueueMaxSize,
			Workers:        cfg.Server.Workers,
			MaxConnections: cfg.Server.MaxConnections,
			RequestTimeout: cfg.Server.RequestTimeout,
		},
	})
}

// serveFromArgs honors the positional spawn contract:
// serve <driver_type> <driver_config_json> <socket_path> [log_path] [queue_max]
func serveFromArgs(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("expected: serve <driver_type> <driver_config_json> <socket_path> [log_path] [queue_max]")
	}

	var driverCfg driver.Config
	if err := json.Unmarshal([]byte(args[1]), &driverCfg); err != nil {
		return fmt.Errorf("parse driver config: %w", err)
	}

	logOutput := "stderr"
	if len(args) >= 4 && args[3] != "" {
		logOutput = args[3]
	}
	if err := logger.Init(logger.Config{Level: "INFO", Format: "text", Output: logOutput}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	queueMax := 0
	if len(args) >= 5 {
		n, err := strconv.Atoi(args[4])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid queue_max %q", args[4])
		}
		queueMax = n
	}

	return server.Run(server.RunnerOptions{
		DriverType:   driver.Type(args[0]),
		DriverConfig: driverCfg,
		Server: server.Config{
			SocketPath:   args[2],
			QueueMaxSize: queueMax,
		},
	})
}

// serveMetrics exposes the Prometheus endpoint. Failures are logged, not
// fatal; the daemon works without metrics.
func serveMetrics(addr string) {
	handler := metrics.Handler()
	if handler == nil {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Warn("Metrics endpoint failed", logger.KeyError, err)
	}
}

package config

import (
	"strings"
	"time"

	"github.com/codescope/codedb/internal/bytesize"
)

// Default values applied by ApplyDefaults.
const (
	DefaultSocketPath     = "/tmp/codedb.sock"
	DefaultDatabasePath   = "codedb.sqlite"
	DefaultQueueMaxSize   = 1000
	DefaultServerWorkers  = 4
	DefaultMaxConnections = 256
	DefaultRequestTimeout = 300 * time.Second

	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 50

	DefaultShutdownTimeout = 30 * time.Second

	DefaultQueryLogMaxSize = 100 * bytesize.MiB
	DefaultQueryLogBackups = 5

	DefaultMetricsListenAddr = "127.0.0.1:9464"
)

// ApplyDefaults fills zero-valued fields with defaults. Explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyWorkerDefaults(&cfg.Worker)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.QueueMaxSize <= 0 {
		cfg.QueueMaxSize = DefaultQueueMaxSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultServerWorkers
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.Path == "" {
		cfg.Path = DefaultDatabasePath
	}
	if cfg.QueryLogPath != "" {
		if cfg.QueryLogMaxSize == 0 {
			cfg.QueryLogMaxSize = DefaultQueryLogMaxSize
		}
		if cfg.QueryLogBackups <= 0 {
			cfg.QueryLogBackups = DefaultQueryLogBackups
		}
	}
}

func applyWorkerDefaults(cfg *WorkerConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultMetricsListenAddr
	}
}

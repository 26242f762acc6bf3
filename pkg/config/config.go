// Package config loads and validates the daemon configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest)
//  2. Environment variables (CODEDB_*)
//  3. Configuration file (YAML or TOML)
//  4. Defaults (lowest)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/codescope/codedb/internal/bytesize"
	"github.com/codescope/codedb/pkg/driver"
)

// Config is the daemon configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server holds the RPC server settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database selects and configures the storage engine.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Worker holds the background indexing worker settings.
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`

	// Metrics contains the Prometheus exposition settings.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig holds the RPC server settings.
type ServerConfig struct {
	// SocketPath is the Unix domain socket to listen on.
	SocketPath string `mapstructure:"socket_path" validate:"required" yaml:"socket_path"`

	// QueueMaxSize bounds the request queue.
	QueueMaxSize int `mapstructure:"queue_max_size" validate:"gt=0" yaml:"queue_max_size"`

	// Workers is the queue-draining worker count.
	Workers int `mapstructure:"workers" validate:"gt=0" yaml:"workers"`

	// MaxConnections bounds concurrently served connections.
	MaxConnections int `mapstructure:"max_connections" validate:"gt=0" yaml:"max_connections"`

	// RequestTimeout covers queue wait plus execution per request.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0" yaml:"request_timeout"`
}

// DatabaseConfig selects and configures the storage engine.
type DatabaseConfig struct {
	// Driver is the engine name; only "sqlite" is implemented.
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres mysql" yaml:"driver"`

	// Path is the database file path.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// QueryLogPath enables the query journal when non-empty.
	QueryLogPath string `mapstructure:"query_log_path" yaml:"query_log_path"`

	// QueryLogMaxSize overrides the journal rotation threshold. Config
	// files may use human-readable sizes like "100Mi".
	QueryLogMaxSize bytesize.ByteSize `mapstructure:"query_log_max_size" yaml:"query_log_max_size"`

	// QueryLogBackups overrides the journal backup count.
	QueryLogBackups int `mapstructure:"query_log_backups" yaml:"query_log_backups"`

	// BusyTimeoutMs is the SQLite busy handler timeout.
	BusyTimeoutMs int `mapstructure:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// DriverConfig converts the database section into the driver shape.
func (c DatabaseConfig) DriverConfig() driver.Config {
	return driver.Config{
		Path:             c.Path,
		QueryLogPath:     c.QueryLogPath,
		QueryLogMaxBytes: c.QueryLogMaxSize.Int64(),
		QueryLogBackups:  c.QueryLogBackups,
		BusyTimeoutMs:    c.BusyTimeoutMs,
	}
}

// WorkerConfig holds the background indexing worker settings.
type WorkerConfig struct {
	// Enabled starts the worker alongside the server.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PollInterval is the idle delay between cycles.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0" yaml:"poll_interval"`

	// BatchSize bounds the files processed per cycle.
	BatchSize int `mapstructure:"batch_size" validate:"gt=0" yaml:"batch_size"`
}

// MetricsConfig contains the Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the exposition endpoint.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the exposition endpoint address.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Load reads the configuration from the given file (or the default search
// path when empty), applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CODEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("codedb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".codedb"))
		}
		v.AddConfigPath("/etc/codedb")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file on the default search path is fine; an explicit
		// path must exist.
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeHooks converts string config values into the typed fields:
// human-readable byte sizes and Go duration strings.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(_, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// Validate checks the configuration against its declarative rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config field %s failed rule %q", f.Namespace(), f.Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

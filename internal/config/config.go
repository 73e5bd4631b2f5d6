// Package config loads and validates control plane configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Fleet    FleetConfig    `mapstructure:"fleet"`
	Runs     RunsConfig     `mapstructure:"runs"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig selects the persistence backend for jobs, services, and
// run logs.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// RedisConfig locates the signal store shared with the crawler fleet.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ExecutorConfig locates the fleet control command and bounds its calls.
type ExecutorConfig struct {
	Command              string `mapstructure:"command"`
	StatusTimeoutSeconds int    `mapstructure:"status_timeout_seconds"`
	LaunchTimeoutSeconds int    `mapstructure:"launch_timeout_seconds"`
	LogTimeoutSeconds    int    `mapstructure:"log_timeout_seconds"`
}

// IngestConfig locates the crawl ingestion endpoint.
type IngestConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FleetConfig tunes pool status probes and drain loops.
type FleetConfig struct {
	LogWindowPerUnit        int `mapstructure:"log_window_per_unit"`
	IdlePollIntervalSeconds int `mapstructure:"idle_poll_interval_seconds"`
	IdlePollBudget          int `mapstructure:"idle_poll_budget"`
	QueueClearPasses        int `mapstructure:"queue_clear_passes"`
}

// RunsConfig bounds the convergence loops behind run operator actions.
type RunsConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PollBudget          int `mapstructure:"poll_budget"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDERCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("executor.command", "docker_control.sh")
	v.SetDefault("executor.status_timeout_seconds", 5)
	v.SetDefault("executor.launch_timeout_seconds", 20)
	v.SetDefault("executor.log_timeout_seconds", 3)
	v.SetDefault("ingest.base_url", "")
	v.SetDefault("ingest.timeout_seconds", 3)
	v.SetDefault("fleet.log_window_per_unit", 12)
	v.SetDefault("fleet.idle_poll_interval_seconds", 10)
	v.SetDefault("fleet.idle_poll_budget", 60)
	v.SetDefault("fleet.queue_clear_passes", 3)
	v.SetDefault("runs.poll_interval_seconds", 1)
	v.SetDefault("runs.poll_budget", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Storage.Driver != "postgres" && c.Storage.Driver != "memory" {
		return fmt.Errorf("storage.driver must be postgres or memory")
	}
	if c.Storage.Driver == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when storage.driver is postgres")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set")
	}
	if c.Executor.Command == "" {
		return fmt.Errorf("executor.command must be set")
	}
	if c.Ingest.BaseURL == "" {
		return fmt.Errorf("ingest.base_url must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ServerTimeout converts the request timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// IngestTimeout converts the ingest submission timeout into a duration.
func (c Config) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSeconds) * time.Second
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the main structure mapping the entire application configuration.
// This struct uses mapstructure tags to map YAML keys to Go struct fields.
type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		BaseURL         string        `mapstructure:"base_url"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	// Driver is "sqlite" (Name is the file) or "postgres" (DSN is used).
	Database struct {
		Driver string `mapstructure:"driver"`
		Name   string `mapstructure:"name"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	// Resolver bounds every store call made on the redirect path.
	Resolver struct {
		LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
		RecordTimeout  time.Duration `mapstructure:"record_timeout"`
		MaxRetries     uint64        `mapstructure:"max_retries"`
		InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	} `mapstructure:"resolver"`

	Links struct {
		ShortIDLength int `mapstructure:"short_id_length"`
	} `mapstructure:"links"`

	Analytics struct {
		BufferSize  int `mapstructure:"buffer_size"`
		WorkerCount int `mapstructure:"worker_count"`
	} `mapstructure:"analytics"`

	Activity struct {
		Retention     int           `mapstructure:"retention"`
		PruneInterval time.Duration `mapstructure:"prune_interval"`
	} `mapstructure:"activity"`

	Monitor struct {
		IntervalMinutes int `mapstructure:"interval_minutes"`
	} `mapstructure:"monitor"`

	// An empty RedisAddr keeps subscriptions in process.
	Changefeed struct {
		RedisAddr string `mapstructure:"redis_addr"`
		Channel   string `mapstructure:"channel"`
	} `mapstructure:"changefeed"`

	Logger struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logger"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.name", "affiliate_links.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("resolver.lookup_timeout", 2*time.Second)
	v.SetDefault("resolver.record_timeout", 3*time.Second)
	v.SetDefault("resolver.max_retries", 3)
	v.SetDefault("resolver.initial_backoff", 50*time.Millisecond)
	v.SetDefault("links.short_id_length", 5)
	v.SetDefault("analytics.buffer_size", 1000)
	v.SetDefault("analytics.worker_count", 5)
	v.SetDefault("activity.retention", 50)
	v.SetDefault("activity.prune_interval", time.Minute)
	v.SetDefault("monitor.interval_minutes", 5)
	v.SetDefault("changefeed.redis_addr", "")
	v.SetDefault("changefeed.channel", "affiliate:links")
	v.SetDefault("logger.level", "info")
}

// LoadConfig loads the application configuration from ./configs/config.yaml,
// environment variables (SERVER_PORT for server.port) and defaults.
func LoadConfig() (*Config, error) {
	return load(viper.New(), "./configs")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Analytics.WorkerCount < 1 {
		return fmt.Errorf("analytics.worker_count must be at least 1")
	}
	if c.Analytics.BufferSize < 0 {
		return fmt.Errorf("analytics.buffer_size must not be negative")
	}
	if c.Activity.PruneInterval <= 0 {
		return fmt.Errorf("activity.prune_interval must be positive")
	}
	if c.Monitor.IntervalMinutes < 0 {
		return fmt.Errorf("monitor.interval_minutes must not be negative, 0 disables the monitor")
	}
	if c.Links.ShortIDLength < 4 {
		return fmt.Errorf("links.short_id_length must be at least 4")
	}
	return nil
}

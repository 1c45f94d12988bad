package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Feed      FeedConfig      `yaml:"feed" mapstructure:"feed"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FeedConfig configures where and how the product feed is fetched.
type FeedConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	VersionPrefix string `yaml:"version_prefix" mapstructure:"version_prefix"`
}

// AnthropicConfig holds Anthropic API settings for the chat assistant.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// QueryConfig caps how much each query result carries.
type QueryConfig struct {
	ResultLimit        int `yaml:"result_limit" mapstructure:"result_limit"`
	ChangesLimit       int `yaml:"changes_limit" mapstructure:"changes_limit"`
	RecentImportsLimit int `yaml:"recent_imports_limit" mapstructure:"recent_imports_limit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ScheduleConfig configures the periodic import trigger.
type ScheduleConfig struct {
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// MonitorConfig configures feed health thresholds.
type MonitorConfig struct {
	MaxSyncAgeHours        int `yaml:"max_sync_age_hours" mapstructure:"max_sync_age_hours"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEEDWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	// empty defaults keep env-only keys visible to Unmarshal
	v.SetDefault("feed.url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("feed.timeout_secs", 30)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.user_agent", "feedwise/1.0")
	v.SetDefault("feed.version_prefix", "feed")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("query.result_limit", 10)
	v.SetDefault("query.changes_limit", 10)
	v.SetDefault("query.recent_imports_limit", 5)
	v.SetDefault("server.port", 8080)
	// seconds-first cron syntax: daily at 06:00
	v.SetDefault("schedule.cron", "0 0 6 * * *")
	v.SetDefault("monitor.max_sync_age_hours", 26)
	v.SetDefault("monitor.max_consecutive_failures", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the invariants a given run mode depends on. mode is the
// command about to run: "import", "serve", "schedule", "chat", or "query".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "import", "schedule":
		if c.Feed.URL == "" {
			problems = append(problems, "feed.url is required")
		}
		if mode == "schedule" && c.Schedule.Cron == "" {
			problems = append(problems, "schedule.cron is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "chat", "query":
		// anthropic.key is optional: without it answers fall back to
		// formatted catalog data
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

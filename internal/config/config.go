package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	IHC    IHCConfig    `yaml:"ihc" mapstructure:"ihc"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// SchemaPath optionally points at a DDL script that overrides the
	// embedded schema during migration.
	SchemaPath string `yaml:"schema_path" mapstructure:"schema_path"`
}

// IHCConfig holds IHC scoring API settings.
type IHCConfig struct {
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey             string  `yaml:"api_key" mapstructure:"api_key"`
	ConvTypeID         string  `yaml:"conv_type_id" mapstructure:"conv_type_id"`
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	RetryCount         int     `yaml:"retry_count" mapstructure:"retry_count"`
	RetryDelaySecs     int     `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RedistributionPath string  `yaml:"redistribution_path" mapstructure:"redistribution_path"`
}

// RetryDelay returns the inter-attempt delay as a duration.
func (c IHCConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// Timeout returns the per-request network timeout as a duration.
func (c IHCConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ReportConfig configures report export.
type ReportConfig struct {
	OutputPath string `yaml:"output_path" mapstructure:"output_path"`
	Format     string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("ATTRIBUTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Optional keys get an empty default so AutomaticEnv picks
	// them up during Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/attribution.db")
	v.SetDefault("store.schema_path", "")
	v.SetDefault("ihc.base_url", "https://api.ihc-attribution.com/v1/compute_ihc")
	v.SetDefault("ihc.api_key", "")
	v.SetDefault("ihc.conv_type_id", "data_engineering_challenge")
	v.SetDefault("ihc.batch_size", 200)
	v.SetDefault("ihc.retry_count", 3)
	v.SetDefault("ihc.retry_delay_secs", 5)
	v.SetDefault("ihc.timeout_secs", 30)
	v.SetDefault("ihc.rate_per_sec", 2.0)
	v.SetDefault("ihc.redistribution_path", "")
	v.SetDefault("report.output_path", "channel_reporting.csv")
	v.SetDefault("report.format", "csv")
	v.SetDefault("server.port", 8080)
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

// Validate checks that required settings for a pipeline run are present.
func (c *Config) Validate() error {
	if c.IHC.APIKey == "" {
		return eris.New("config: ihc.api_key is required (set ATTRIBUTION_IHC_API_KEY)")
	}
	if c.IHC.BatchSize <= 0 {
		return eris.New("config: ihc.batch_size must be positive")
	}
	if c.IHC.RetryCount <= 0 {
		return eris.New("config: ihc.retry_count must be positive")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
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

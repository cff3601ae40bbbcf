// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/monitoring"
)

// Config holds the full application configuration.
type Config struct {
	Checkpoint CheckpointConfig       `yaml:"checkpoint" mapstructure:"checkpoint"`
	Pipeline   PipelineConfig         `yaml:"pipeline" mapstructure:"pipeline"`
	Infer      InferConfig            `yaml:"infer" mapstructure:"infer"`
	Batch      BatchConfig            `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Alerts     monitoring.AlertConfig `yaml:"alerts" mapstructure:"alerts"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
}

// CheckpointConfig configures the checkpoint store backend.
type CheckpointConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Cache       bool   `yaml:"cache" mapstructure:"cache"`
}

// PipelineConfig holds the injected extraction thresholds.
type PipelineConfig struct {
	MinCoreCoverage  int     `yaml:"min_core_coverage" mapstructure:"min_core_coverage"`
	MinConfidence    float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	BalanceTolerance float64 `yaml:"balance_tolerance" mapstructure:"balance_tolerance"`
	InferTimeoutSecs int     `yaml:"infer_timeout_secs" mapstructure:"infer_timeout_secs"`
}

// InferConfig configures the assisted-extraction collaborator.
type InferConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxExcerpt     int     `yaml:"max_excerpt" mapstructure:"max_excerpt"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	QueueDepth  int `yaml:"queue_depth" mapstructure:"queue_depth"`
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

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FILINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("checkpoint.driver", "sqlite")
	v.SetDefault("checkpoint.sqlite_path", "checkpoints.db")
	v.SetDefault("checkpoint.cache", true)
	v.SetDefault("pipeline.min_core_coverage", 5)
	v.SetDefault("pipeline.min_confidence", 0.80)
	v.SetDefault("pipeline.balance_tolerance", 0.01)
	v.SetDefault("pipeline.infer_timeout_secs", 90)
	v.SetDefault("infer.model", "claude-haiku-4-5-20251001")
	v.SetDefault("infer.max_tokens", 2048)
	v.SetDefault("infer.max_excerpt", 65536)
	v.SetDefault("infer.requests_per_sec", 2.0)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.queue_depth", 256)
	v.SetDefault("server.port", 8080)
	v.SetDefault("alerts.max_escalation_rate", 0.25)
	v.SetDefault("alerts.min_sample", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

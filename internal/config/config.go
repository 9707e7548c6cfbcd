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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Matrix  MatrixConfig  `yaml:"matrix" mapstructure:"matrix"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Suggest SuggestConfig `yaml:"suggest" mapstructure:"suggest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LLMConfig configures the OpenAI-compatible provider. The provider is
// optional: when base_url, key or model is empty the application runs
// heuristic-only.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Key            string `yaml:"key" mapstructure:"key"`
	Model          string `yaml:"model" mapstructure:"model"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	RequestDelayMs int    `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	Debug          bool   `yaml:"debug" mapstructure:"debug"`
	DebugLogPath   string `yaml:"debug_log_path" mapstructure:"debug_log_path"`
}

// Configured reports whether all provider fields needed for a request are
// present.
func (c LLMConfig) Configured() bool {
	return c.BaseURL != "" && c.Key != "" && c.Model != ""
}

// MatrixConfig points at the collision-matrix CSV.
type MatrixConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CatalogConfig configures price catalog imports.
type CatalogConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
}

// SuggestConfig configures suggestion generation. KeywordsPath points at an
// optional YAML file overriding the compiled-in keyword tables.
type SuggestConfig struct {
	TopN          int    `yaml:"top_n" mapstructure:"top_n"`
	CatalogLimit  int    `yaml:"catalog_limit" mapstructure:"catalog_limit"`
	AcceptedLimit int    `yaml:"accepted_limit" mapstructure:"accepted_limit"`
	KeywordsPath  string `yaml:"keywords_path" mapstructure:"keywords_path"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("CMW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cmw.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("matrix.path", "matrix.csv")
	v.SetDefault("catalog.source", "garant")
	v.SetDefault("suggest.top_n", 8)
	v.SetDefault("suggest.catalog_limit", 10000)
	v.SetDefault("suggest.accepted_limit", 50)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.request_delay_ms", 300)
	v.SetDefault("llm.debug_log_path", "logs/llm.log")

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

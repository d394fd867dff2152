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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	TestMode   bool             `yaml:"test_mode" mapstructure:"test_mode"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StorageConfig configures durable file storage.
type StorageConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// CatalogConfig holds remote product catalog settings.
type CatalogConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Domain      string  `yaml:"domain" mapstructure:"domain"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// LLMConfig holds LLM endpoint settings.
type LLMConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ImportConfig holds startup defaults for the import mapping. The full
// declarative mapping lives in importcfg; this section points at its file
// and carries the worksheet default.
type ImportConfig struct {
	MappingFile string `yaml:"mapping_file" mapstructure:"mapping_file"`
	SheetName   string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// ExtractionConfig configures the extraction driver.
type ExtractionConfig struct {
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens" mapstructure:"cost_per_1k_tokens"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseSecs int     `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
}

// WorkerConfig configures the background executor.
type WorkerConfig struct {
	PoolSize  int `yaml:"pool_size" mapstructure:"pool_size"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
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
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ingest.db")
	v.SetDefault("storage.root", "data")
	v.SetDefault("catalog.base_url", "https://api.sellersprite.com")
	v.SetDefault("catalog.domain", "com")
	v.SetDefault("catalog.timeout_secs", 30)
	v.SetDefault("catalog.rate_per_sec", 1.0)
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("import.sheet_name", "产品详情")
	v.SetDefault("extraction.cost_per_1k_tokens", 0.002)
	v.SetDefault("extraction.timeout_secs", 60)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.backoff_base_secs", 1)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.queue_size", 64)
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

// Validate checks that keys required outside test mode are present.
func (c *Config) Validate() error {
	if c.TestMode {
		return nil
	}
	if c.Catalog.Key == "" {
		return eris.New("config: catalog key is required (INGEST_CATALOG_KEY)")
	}
	if c.LLM.Key == "" {
		return eris.New("config: llm key is required (INGEST_LLM_KEY)")
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

package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Brave    BraveConfig    `yaml:"brave" mapstructure:"brave"`
	Scrape   ScrapeConfig   `yaml:"scrape" mapstructure:"scrape"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Worker   WorkerConfig   `yaml:"worker" mapstructure:"worker"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Callback CallbackConfig `yaml:"callback" mapstructure:"callback"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// BraveConfig holds Brave Web Search settings.
type BraveConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Count        int     `yaml:"count" mapstructure:"count"`
	Country      string  `yaml:"country" mapstructure:"country"`
	SearchLang   string  `yaml:"search_lang" mapstructure:"search_lang"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScrapeConfig configures page fetching and contact harvesting.
type ScrapeConfig struct {
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PhoneRegion  string `yaml:"phone_region" mapstructure:"phone_region"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// PipelineConfig configures per-business enrichment.
type PipelineConfig struct {
	CooldownMS    int    `yaml:"cooldown_ms" mapstructure:"cooldown_ms"`
	MaxScrapeURLs int    `yaml:"max_scrape_urls" mapstructure:"max_scrape_urls"`
	DefaultRegion string `yaml:"default_region" mapstructure:"default_region"`
}

// Cooldown returns the politeness delay observed after each business.
func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMS) * time.Millisecond
}

// WorkerConfig configures the background executor.
type WorkerConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	QueueSize        int `yaml:"queue_size" mapstructure:"queue_size"`
	DrainTimeoutSecs int `yaml:"drain_timeout_secs" mapstructure:"drain_timeout_secs"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port   int    `yaml:"port" mapstructure:"port"`
	Secret string `yaml:"secret" mapstructure:"secret"`
}

// CallbackConfig configures the completion notification.
type CallbackConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("brave.count", 10)
	v.SetDefault("brave.country", "AR")
	v.SetDefault("brave.search_lang", "es")
	v.SetDefault("brave.rate_limit_rps", 1.0)
	v.SetDefault("brave.timeout_secs", 15)
	v.SetDefault("scrape.user_agent", "PurosoftwareBot/1.0 (+https://purosoftware.com)")
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.phone_region", "AR")
	v.SetDefault("scrape.max_body_bytes", 2<<20)
	v.SetDefault("pipeline.cooldown_ms", 500)
	v.SetDefault("pipeline.max_scrape_urls", 3)
	v.SetDefault("pipeline.default_region", "AR")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.queue_size", 16)
	v.SetDefault("worker.drain_timeout_secs", 300)
	v.SetDefault("server.port", 8000)
	v.SetDefault("callback.url", "http://localhost:3000/api/enrichment/callback")
	v.SetDefault("callback.timeout_secs", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"brave.key", "server.secret", "store.database_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

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

// Validate checks settings required by the serve command.
func (c *Config) Validate() error {
	if c.Server.Secret == "" {
		return eris.New("config: server.secret is required (ENRICH_SERVER_SECRET)")
	}
	if c.Worker.Concurrency < 1 {
		return eris.New("config: worker.concurrency must be at least 1")
	}
	if c.Pipeline.MaxScrapeURLs < 1 {
		return eris.New("config: pipeline.max_scrape_urls must be at least 1")
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

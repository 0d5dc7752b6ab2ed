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
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Quota     QuotaConfig     `yaml:"quota" mapstructure:"quota"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig configures the record store backend. Driver is "sqlite",
// "postgres", or "none" (no quota or scan bookkeeping).
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Calls      int `yaml:"calls" mapstructure:"calls"`
	PeriodSecs int `yaml:"period_secs" mapstructure:"period_secs"`
}

// Period returns the refill window as a duration.
func (c RateLimitConfig) Period() time.Duration {
	return time.Duration(c.PeriodSecs) * time.Second
}

// QuotaConfig configures the per-user daily quota policy.
type QuotaConfig struct {
	BasicDailyLimit int `yaml:"basic_daily_limit" mapstructure:"basic_daily_limit"`
}

// UploadConfig configures file intake and the local blob store.
type UploadConfig struct {
	Dir          string   `yaml:"dir" mapstructure:"dir"`
	MaxFileSize  int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
	AllowedTypes []string `yaml:"allowed_types" mapstructure:"allowed_types"`
}

// AnthropicConfig holds analysis-provider settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
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
	v.SetEnvPrefix("DOCSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:3000",
		"http://localhost:5173",
	})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docscan.db")
	v.SetDefault("rate_limit.calls", 100)
	v.SetDefault("rate_limit.period_secs", 60)
	v.SetDefault("quota.basic_daily_limit", 3)
	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "application/pdf"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_minute", 50)
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

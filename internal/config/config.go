package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const developmentEnv = "development"

// Config captures application runtime configuration loaded from the
// environment, an optional .env file and an optional CONFIG_FILE.
type Config struct {
	AppName           string        `mapstructure:"app_name"`
	AppEnv            string        `mapstructure:"app_env"`
	Port              string        `mapstructure:"port"`
	LogLevel          string        `mapstructure:"log_level"`
	DatabaseURL       string        `mapstructure:"database_url"`
	RedisURL          string        `mapstructure:"redis_url"`
	MirrorDSN         string        `mapstructure:"mirror_dsn"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
	LedgerMaxAttempts int           `mapstructure:"ledger_max_attempts"`
	MirrorWorkers     int           `mapstructure:"mirror_workers"`
	MirrorQueueSize   int           `mapstructure:"mirror_queue_size"`
	MirrorMaxElapsed  time.Duration `mapstructure:"mirror_max_elapsed"`
	OTPTTL            time.Duration `mapstructure:"otp_ttl"`
	OTPRateLimit      int           `mapstructure:"otp_rate_limit"`
	OTPRateWindow     time.Duration `mapstructure:"otp_rate_window"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
	ShutdownPeriod    time.Duration `mapstructure:"shutdown_timeout"`
	KafkaBrokers      []string      `mapstructure:"kafka_brokers"`
	KafkaTopic        string        `mapstructure:"kafka_topic"`
	NotifyTimeout     time.Duration `mapstructure:"notify_timeout"`
}

// Load reads configuration. A missing .env or config file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")
	v.SetDefault("app_name", "digiwallet")
	v.SetDefault("app_env", developmentEnv)
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("mirror_dsn", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "2h")
	v.SetDefault("store_timeout", "3s")
	v.SetDefault("ledger_max_attempts", 5)
	v.SetDefault("mirror_workers", 2)
	v.SetDefault("mirror_queue_size", 1024)
	v.SetDefault("mirror_max_elapsed", "30s")
	v.SetDefault("otp_ttl", "5m")
	v.SetDefault("otp_rate_limit", 5)
	v.SetDefault("otp_rate_window", "15m")
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "wallet.transfers")
	v.SetDefault("notify_timeout", "5s")
}

func (c *Config) validate() error {
	if c.IsDevelopment() {
		if c.JWTSecret == "" {
			c.JWTSecret = "development-only-secret"
		}
	} else {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set")
		}
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.LedgerMaxAttempts < 1 {
		return fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must be set when KAFKA_BROKERS is")
	}
	return nil
}

// IsDevelopment reports whether in-memory fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == developmentEnv
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

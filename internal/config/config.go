package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	// Notification transport settings. Empty addresses disable the channel;
	// the dispatcher still records the skipped delivery.
	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`
	SMTPFrom      string `mapstructure:"SMTP_FROM"`
	SMSGatewayURL string `mapstructure:"SMS_GATEWAY_URL"`

	NotifyMaxAttempts   int `mapstructure:"NOTIFY_MAX_ATTEMPTS"`
	NotifyRetryBaseSecs int `mapstructure:"NOTIFY_RETRY_BASE_SECS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)
	v.SetDefault("NOTIFY_RETRY_BASE_SECS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SIGNING_KEY", "MIGRATIONS_DIR",
		"SMTP_HOST", "SMTP_PORT", "SMTP_FROM", "SMS_GATEWAY_URL",
		"NOTIFY_MAX_ATTEMPTS", "NOTIFY_RETRY_BASE_SECS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Env == "production" && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("JWT_SIGNING_KEY is required in production")
	}

	return cfg, nil
}

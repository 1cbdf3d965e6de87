/**
 * @description
 * Configuration management for the trading service and settlement scheduler.
 */
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	IDProviderLocal    = "local"
	IDProviderRedis    = "redis"
	IDProviderPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	StorageDriver         string `mapstructure:"STORAGE_DRIVER"`
	IDProvider            string `mapstructure:"ID_PROVIDER"`
	// IDStart seeds the local and redis providers. Postgres sequences take their
	// start from the schema migration.
	IDStart               int64  `mapstructure:"ID_START"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix        string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	EventsExchange        string `mapstructure:"EVENTS_EXCHANGE"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	InternalAPIKey        string `mapstructure:"INTERNAL_API_KEY"`
	DefaultCurrency       string `mapstructure:"DEFAULT_CURRENCY"`
	SettlementJobSchedule string `mapstructure:"SETTLEMENT_JOB_SCHEDULE"`
	PurchaseRateLimit     int    `mapstructure:"PURCHASE_RATE_LIMIT"`
	PurchaseRateWindowRaw string `mapstructure:"PURCHASE_RATE_WINDOW"`
	OutboxPollIntervalRaw string `mapstructure:"OUTBOX_POLL_INTERVAL"`

	PurchaseRateWindow time.Duration `mapstructure:"-"`
	OutboxPollInterval time.Duration `mapstructure:"-"`
}

var envKeys = []string{
	"SERVER_PORT",
	"PORT",
	"DATABASE_URL",
	"STORAGE_DRIVER",
	"ID_PROVIDER",
	"ID_START",
	"REDIS_URL",
	"REDIS_KEY_PREFIX",
	"RABBITMQ_URL",
	"EVENTS_EXCHANGE",
	"JWT_SECRET",
	"INTERNAL_API_KEY",
	"DEFAULT_CURRENCY",
	"SETTLEMENT_JOB_SCHEDULE",
	"PURCHASE_RATE_LIMIT",
	"PURCHASE_RATE_WINDOW",
	"OUTBOX_POLL_INTERVAL",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	viper.SetDefault("ID_START", 10000)
	viper.SetDefault("REDIS_KEY_PREFIX", "trading")
	viper.SetDefault("EVENTS_EXCHANGE", "trading.events")
	viper.SetDefault("DEFAULT_CURRENCY", "CNY")
	viper.SetDefault("SETTLEMENT_JOB_SCHEDULE", "0 0 * * *")
	viper.SetDefault("PURCHASE_RATE_LIMIT", 0)
	viper.SetDefault("PURCHASE_RATE_WINDOW", "1m")
	viper.SetDefault("OUTBOX_POLL_INTERVAL", "1200ms")
	viper.AutomaticEnv()

	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}

	config.StorageDriver = strings.ToLower(strings.TrimSpace(config.StorageDriver))
	config.IDProvider = strings.ToLower(strings.TrimSpace(config.IDProvider))
	config.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.DefaultCurrency))
	if config.IDProvider == "" {
		if config.StorageDriver == StorageDriverPostgres {
			config.IDProvider = IDProviderPostgres
		} else {
			config.IDProvider = IDProviderLocal
		}
	}

	if config.PurchaseRateWindow, err = parseDuration("PURCHASE_RATE_WINDOW", config.PurchaseRateWindowRaw); err != nil {
		return config, err
	}
	if config.OutboxPollInterval, err = parseDuration("OUTBOX_POLL_INTERVAL", config.OutboxPollIntervalRaw); err != nil {
		return config, err
	}

	return config, config.validate()
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StorageDriverPostgres)
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.StorageDriver)
	}

	switch c.IDProvider {
	case IDProviderLocal:
		// Local counters restart on every boot and are not shared between processes.
		if c.StorageDriver == StorageDriverPostgres {
			return fmt.Errorf("ID_PROVIDER=%s cannot be used with STORAGE_DRIVER=%s; use %s or %s", IDProviderLocal, StorageDriverPostgres, IDProviderPostgres, IDProviderRedis)
		}
	case IDProviderRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when ID_PROVIDER=%s", IDProviderRedis)
		}
	case IDProviderPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			return fmt.Errorf("ID_PROVIDER=%s requires STORAGE_DRIVER=%s", IDProviderPostgres, StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("ID_PROVIDER must be one of local, redis, postgres, got %q", c.IDProvider)
	}

	if c.PurchaseRateLimit < 0 {
		return fmt.Errorf("PURCHASE_RATE_LIMIT must not be negative")
	}
	if c.PurchaseRateLimit > 0 && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when PURCHASE_RATE_LIMIT is set")
	}
	if c.DefaultCurrency == "" {
		return fmt.Errorf("DEFAULT_CURRENCY must not be empty")
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
	}
	return d, nil
}

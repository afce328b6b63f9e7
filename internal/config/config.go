// Package config reads service configuration from the environment. Every
// variable is prefixed TANKER_ (TANKER_PORT, TANKER_DB_DSN and so on).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the booking engine.
type Config struct {
	AppEnv string
	Port   string

	// DatabaseDSN is the per-user application tier connection.
	DatabaseDSN string
	// MigrationDSN is the elevated tier the migration pipeline runs on.
	// It falls back to DatabaseDSN when unset.
	MigrationDSN string

	KafkaBrokers []string
	ChangeTopic  string

	// LocalStorePath is the on-device store file migrated from.
	LocalStorePath string

	JWTSecret string
}

// Load reads configuration from environment variables with defaults fit
// for local development.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TANKER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", ":8080")
	v.SetDefault("DB_DSN", "host=localhost user=tanker password=tanker dbname=tanker port=5432 sslmode=disable")
	v.SetDefault("MIGRATION_DSN", "")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("CHANGE_TOPIC", "tanker.table-changes")
	v.SetDefault("LOCAL_STORE_PATH", "tanker-local.db")
	v.SetDefault("JWT_SECRET", "")

	cfg := &Config{
		AppEnv:         v.GetString("APP_ENV"),
		Port:           v.GetString("PORT"),
		DatabaseDSN:    v.GetString("DB_DSN"),
		MigrationDSN:   v.GetString("MIGRATION_DSN"),
		KafkaBrokers:   strings.Split(v.GetString("KAFKA_BROKERS"), ","),
		ChangeTopic:    v.GetString("CHANGE_TOPIC"),
		LocalStorePath: v.GetString("LOCAL_STORE_PATH"),
		JWTSecret:      v.GetString("JWT_SECRET"),
	}
	if cfg.MigrationDSN == "" {
		cfg.MigrationDSN = cfg.DatabaseDSN
	}
	if !strings.HasPrefix(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.AppEnv != "development" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("TANKER_JWT_SECRET is required outside development")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-only-secret"
	}
	return cfg, nil
}

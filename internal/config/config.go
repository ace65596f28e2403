// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"consult-core/pkg/db" // Import db package for its Config struct

	"github.com/spf13/viper"
)

// EngineConfig holds the session engine policy knobs.
type EngineConfig struct {
	// CommissionPercent is the platform's cut of every charged amount.
	CommissionPercent int64
	// MinHoldMinutes is the provisional number of minutes reserved at
	// session initiation; the real cap is recomputed when both parties join.
	MinHoldMinutes int64
	// RequestTimeout is how long a provider has to accept or reject.
	RequestTimeout time.Duration
	// JoinTimeout is how long the parties have to join after acceptance.
	JoinTimeout time.Duration
}

// KafkaConfig holds the notification broker settings. The Kafka notifier is
// only wired when brokers are configured.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether a broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	DB         db.Config
	Engine     EngineConfig
	Kafka      KafkaConfig
}

// LoadConfig loads configuration via viper. Values come from an optional
// config.yaml in the working directory, overridden by environment variables
// (dots replaced by underscores, e.g. ENGINE_COMMISSION_PERCENT).
func LoadConfig() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "user")
	v.SetDefault("db.password", "password")
	v.SetDefault("db.name", "consultdb")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("engine.commission_percent", 20)
	v.SetDefault("engine.min_hold_minutes", 5)
	v.SetDefault("engine.request_timeout", "60s")
	v.SetDefault("engine.join_timeout", "120s")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "session-events")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	cfg := &AppConfig{
		ServerPort: v.GetString("server.port"),
		DB: db.Config{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			DBName:   v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
		},
		Engine: EngineConfig{
			CommissionPercent: v.GetInt64("engine.commission_percent"),
			MinHoldMinutes:    v.GetInt64("engine.min_hold_minutes"),
			RequestTimeout:    v.GetDuration("engine.request_timeout"),
			JoinTimeout:       v.GetDuration("engine.join_timeout"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
	}

	if cfg.Engine.CommissionPercent < 0 || cfg.Engine.CommissionPercent > 100 {
		return nil, fmt.Errorf("invalid engine.commission_percent: %d", cfg.Engine.CommissionPercent)
	}
	if cfg.Engine.MinHoldMinutes < 1 {
		return nil, fmt.Errorf("invalid engine.min_hold_minutes: %d", cfg.Engine.MinHoldMinutes)
	}

	return cfg, nil
}

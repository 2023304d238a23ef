// Package config loads process configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the server and admin CLI need at startup.
type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreDriver selects the Conversation Store backend: "postgres" or "memory".
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseDSN string `mapstructure:"DATABASE_DSN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	// KafkaBrokers is a comma separated broker list. Empty disables domain events.
	KafkaBrokers          string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopicMessageSent string `mapstructure:"KAFKA_TOPIC_MESSAGE_SENT"`

	WSPongWait        time.Duration `mapstructure:"WS_PONG_WAIT"`
	WSWriteWait       time.Duration `mapstructure:"WS_WRITE_WAIT"`
	WSMaxMessageBytes int64         `mapstructure:"WS_MAX_MESSAGE_BYTES"`
	WSEventsPerSecond float64       `mapstructure:"WS_EVENTS_PER_SECOND"`
	WSEventBurst      int           `mapstructure:"WS_EVENT_BURST"`
}

var keys = []string{
	"APP_ENV", "HTTP_ADDR", "LOG_LEVEL",
	"STORE_DRIVER", "DATABASE_DSN",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"JWT_SECRET", "JWT_ISSUER",
	"KAFKA_BROKERS", "KAFKA_TOPIC_MESSAGE_SENT",
	"WS_PONG_WAIT", "WS_WRITE_WAIT", "WS_MAX_MESSAGE_BYTES", "WS_EVENTS_PER_SECOND", "WS_EVENT_BURST",
}

// Load reads .env (if present) and the process environment.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	v := viper.New()
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DATABASE_DSN", "host=localhost user=user password=password dbname=marketchat port=5432 sslmode=disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "marketchat")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC_MESSAGE_SENT", "chat.message.sent")
	v.SetDefault("WS_PONG_WAIT", DefaultPongWait)
	v.SetDefault("WS_WRITE_WAIT", DefaultWriteWait)
	v.SetDefault("WS_MAX_MESSAGE_BYTES", DefaultMaxMessageSize)
	v.SetDefault("WS_EVENTS_PER_SECOND", DefaultEventsPerSec)
	v.SetDefault("WS_EVENT_BURST", DefaultEventBurst)

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, dotenv, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, dotenv, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, dotenv, err
	}
	return &cfg, dotenv, nil
}

// Brokers splits KafkaBrokers into a clean list.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// IsDevelopment reports whether APP_ENV selects development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development") || strings.EqualFold(c.AppEnv, "dev")
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (use postgres or memory)", c.StoreDriver)
	}
	if c.WSPongWait <= 0 || c.WSWriteWait <= 0 {
		return errors.New("WS_PONG_WAIT and WS_WRITE_WAIT must be positive")
	}
	if c.WSEventsPerSecond <= 0 || c.WSEventBurst <= 0 {
		return errors.New("WS_EVENTS_PER_SECOND and WS_EVENT_BURST must be positive")
	}
	return nil
}

// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EngineConfig holds the delivery engine settings.
type EngineConfig struct {
	Workers           int `mapstructure:"workers"`             // concurrent delivery workers
	PollInterval      int `mapstructure:"poll_interval"`       // milliseconds
	ClaimBatchSize    int `mapstructure:"claim_batch_size"`    // items claimed per poll
	AttemptTimeout    int `mapstructure:"attempt_timeout"`     // milliseconds, per delivery attempt
	DefaultMaxRetries int `mapstructure:"default_max_retries"` // when the request omits it
	BulkBatchSize     int `mapstructure:"bulk_batch_size"`     // recipients per bulk batch
	BulkBatchDelay    int `mapstructure:"bulk_batch_delay"`    // milliseconds between bulk batches

	Backoff BackoffConfig `mapstructure:"backoff"`
	Circuit CircuitConfig `mapstructure:"circuit"`
}

type BackoffConfig struct {
	InitialDelay int     `mapstructure:"initial_delay"` // milliseconds
	MaxDelay     int     `mapstructure:"max_delay"`     // milliseconds
	Multiplier   float64 `mapstructure:"multiplier"`
	JitterFactor float64 `mapstructure:"jitter_factor"`
}

type CircuitConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	SuccessThreshold int `mapstructure:"success_threshold"`
	RecoveryTimeout  int `mapstructure:"recovery_timeout"` // milliseconds
}

// ChannelsConfig holds per-channel provider settings.
type ChannelsConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	Push struct {
		Enabled  bool   `mapstructure:"enabled"`
		Endpoint string `mapstructure:"endpoint"`
		APIKey   string `mapstructure:"api_key"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"push"`
	Webhook struct {
		Enabled       bool   `mapstructure:"enabled"`
		SigningSecret string `mapstructure:"signing_secret"`
		Timeout       int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"webhook"`
	InApp struct {
		Enabled     bool `mapstructure:"enabled"`
		InboxTTL    int  `mapstructure:"inbox_ttl"`    // seconds, 0 means keep forever
		MaxInboxLen int  `mapstructure:"max_inbox_len"`
	} `mapstructure:"in_app"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

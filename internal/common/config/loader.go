// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DB_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if not present.
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from the working directory and project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Channels.Webhook.SigningSecret == "" {
		if val := os.Getenv("WEBHOOK_SIGNING_SECRET"); val != "" {
			cfg.Channels.Webhook.SigningSecret = val
		}
	}
	if cfg.Channels.Push.APIKey == "" {
		if val := os.Getenv("PUSH_API_KEY"); val != "" {
			cfg.Channels.Push.APIKey = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Engine defaults
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 5
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 1000
	}
	if cfg.Engine.ClaimBatchSize == 0 {
		cfg.Engine.ClaimBatchSize = 10
	}
	if cfg.Engine.AttemptTimeout == 0 {
		cfg.Engine.AttemptTimeout = 30000
	}
	if cfg.Engine.DefaultMaxRetries == 0 {
		cfg.Engine.DefaultMaxRetries = 3
	}
	if cfg.Engine.BulkBatchSize == 0 {
		cfg.Engine.BulkBatchSize = 100
	}
	if cfg.Engine.BulkBatchDelay == 0 {
		cfg.Engine.BulkBatchDelay = 100
	}

	if cfg.Engine.Backoff.InitialDelay == 0 {
		cfg.Engine.Backoff.InitialDelay = 1000
	}
	if cfg.Engine.Backoff.MaxDelay == 0 {
		cfg.Engine.Backoff.MaxDelay = 3600000
	}
	if cfg.Engine.Backoff.Multiplier == 0 {
		cfg.Engine.Backoff.Multiplier = 2.0
	}

	if cfg.Engine.Circuit.FailureThreshold == 0 {
		cfg.Engine.Circuit.FailureThreshold = 5
	}
	if cfg.Engine.Circuit.SuccessThreshold == 0 {
		cfg.Engine.Circuit.SuccessThreshold = 2
	}
	if cfg.Engine.Circuit.RecoveryTimeout == 0 {
		cfg.Engine.Circuit.RecoveryTimeout = 30000
	}

	// Channel defaults
	if cfg.Channels.Push.Timeout == 0 {
		cfg.Channels.Push.Timeout = 10000
	}
	if cfg.Channels.Webhook.Timeout == 0 {
		cfg.Channels.Webhook.Timeout = 10000
	}
	if cfg.Channels.InApp.MaxInboxLen == 0 {
		cfg.Channels.InApp.MaxInboxLen = 500
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Metrics defaults
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Channels.Email.Enabled && cfg.Channels.Email.FromEmail == "" {
		return fmt.Errorf("channels.email.from_email is required when email is enabled")
	}

	return nil
}

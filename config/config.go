package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds token signing configuration.
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// OutboxConfig holds delivery worker configuration.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Config holds all configuration.
type Config struct {
	ServiceName string
	DatabaseURL string
	AdminEmail  string
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Outbox      OutboxConfig
}

// Load reads configuration from the environment, honoring an optional
// .env file.
func Load(serviceName string) (*Config, error) {
	// .env is optional; real deployments use plain env vars.
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: serviceName,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AdminEmail:  getEnv("ADMIN_EMAIL", ""),
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

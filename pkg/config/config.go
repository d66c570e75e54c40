// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Agent    AgentConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// AgentConfig configures the on-device reconciliation agent.
type AgentConfig struct {
	// DataDir is the root for the per-installation durable store.
	DataDir        string
	InstallationID string
	// InstallationSecret authenticates the agent against the ledger service.
	InstallationSecret string
	// StreamURL is the websocket endpoint of the platform transaction stream.
	StreamURL string
	// LedgerURL is the base URL of the remote ledger service.
	LedgerURL string
	// CatalogPath points at the reward catalog YAML file.
	CatalogPath string
	// PlatformKeyPath points at the PEM public key used to verify signed
	// transaction payloads.
	PlatformKeyPath   string
	ReconcileInterval time.Duration
	StreamBackoffMax  time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
		},
		Agent: AgentConfig{
			DataDir:            getEnv("AGENT_DATA_DIR", "./data"),
			InstallationID:     getEnv("AGENT_INSTALLATION_ID", ""),
			InstallationSecret: getEnv("AGENT_INSTALLATION_SECRET", ""),
			StreamURL:          getEnv("AGENT_STREAM_URL", "ws://localhost:9100/transactions"),
			LedgerURL:          getEnv("AGENT_LEDGER_URL", "http://localhost:8080"),
			CatalogPath:        getEnv("AGENT_CATALOG_PATH", "configs/catalog.yaml"),
			PlatformKeyPath:    getEnv("AGENT_PLATFORM_KEY_PATH", "configs/platform.pem"),
			ReconcileInterval:  getDurationEnv("AGENT_RECONCILE_INTERVAL", 5*time.Minute),
			StreamBackoffMax:   getDurationEnv("AGENT_STREAM_BACKOFF_MAX", 1*time.Minute),
		},
	}
}

// ValidateServer checks the settings the ledger service cannot run without.
func (c *Config) ValidateServer() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" || c.JWT.Secret == "change-this-secret" {
		return fmt.Errorf("JWT_SECRET must be set to a non-default value")
	}
	return nil
}

// ValidateAgent checks the settings the agent cannot run without.
func (c *Config) ValidateAgent() error {
	if c.Agent.InstallationID == "" {
		return fmt.Errorf("AGENT_INSTALLATION_ID is required")
	}
	if c.Agent.InstallationSecret == "" {
		return fmt.Errorf("AGENT_INSTALLATION_SECRET is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ClareAI/astra-sales-engine/pkg/redis"
)

// Config holds the sales engine service configuration
type Config struct {
	Port       string
	InstanceID string

	// Completion service
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// API surface
	APISecretKey  string
	EnableCORS    bool
	RatePerMinute int

	// Engine tuning
	MaxReplyLines     int
	ContextWindowSize int
	MaxContacts       int
	StateTTL          time.Duration
	UnderstandingTTL  time.Duration
	ArchetypeTTL      time.Duration

	// Collaborators
	DatabaseEnabled bool
	RedisEnabled    bool
	Redis           redis.RedisConfig
}

// LoadConfigFromEnv loads the configuration from environment variables
func LoadConfigFromEnv() *Config {
	return &Config{
		Port:       getEnvOrDefault("SALES_ENGINE_PORT", "8083"),
		InstanceID: getInstanceID(),

		OpenAIAPIKey:  getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", ""),

		APISecretKey:  getEnvOrDefault("API_SECRET_KEY", ""),
		EnableCORS:    getEnvAsBoolOrDefault("ENABLE_CORS", true),
		RatePerMinute: getEnvAsIntOrDefault("RATE_PER_MINUTE", 30),

		MaxReplyLines:     getEnvAsIntOrDefault("MAX_REPLY_LINES", 4),
		ContextWindowSize: getEnvAsIntOrDefault("CONTEXT_WINDOW_SIZE", 6),
		MaxContacts:       getEnvAsIntOrDefault("MAX_CONTACTS", 5000),
		StateTTL:          time.Duration(getEnvAsIntOrDefault("STATE_TTL_MINUTES", 120)) * time.Minute,
		UnderstandingTTL:  time.Duration(getEnvAsIntOrDefault("UNDERSTANDING_TTL_SECONDS", 30)) * time.Second,
		ArchetypeTTL:      time.Duration(getEnvAsIntOrDefault("ARCHETYPE_TTL_MINUTES", 10)) * time.Minute,

		DatabaseEnabled: getEnvAsBoolOrDefault("DATABASE_ENABLED", false),
		RedisEnabled:    getEnvAsBoolOrDefault("REDIS_ENABLED", false),
		Redis: redis.RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntOrDefault("REDIS_DB", 0),
		},
	}
}

// getInstanceID generates a unique identifier for this service instance.
// The system hostname is the pod name in Kubernetes.
func getInstanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("sales-engine-%d", time.Now().UnixNano())
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

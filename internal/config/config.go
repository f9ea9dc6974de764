package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/real-rm/chatrelay/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Relay    RelayConfig
	Database DatabaseConfig
	Delivery DeliveryConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            int
	JWTSecret       string
	ServiceToken    string // Bearer token required on the message intake endpoint
	MaxConnsPerUser int
	RateLimit       int   // Inbound send frames per minute per user
	MaxFrameSize    int64 // Maximum inbound WebSocket frame size in bytes
	PathPrefix      string
	AllowedOrigins  []string // Allowed WebSocket origins; empty allows all (development mode)
}

// RelayConfig holds the cross-instance event bus configuration. An empty
// address selects the in-process relay, which only serves single-instance
// deployments and tests.
type RelayConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DatabaseConfig holds the MongoDB membership store configuration. An empty
// URI selects the static in-memory resolver.
type DatabaseConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// DeliveryConfig holds delivery path tuning
type DeliveryConfig struct {
	LongPollTimeout time.Duration // Default long-poll hold before resolving empty
	SSETimeout      time.Duration // Default SSE stream lifetime
	ExpiryInterval  time.Duration // Session expiry sweep period
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", constants.DefaultPort),
			JWTSecret:       getEnv("JWT_SECRET", ""),
			ServiceToken:    getEnv("SERVICE_TOKEN", ""),
			MaxConnsPerUser: getEnvAsInt("MAX_CONNS_PER_USER", constants.DefaultMaxConnsPerUser),
			RateLimit:       getEnvAsInt("RATE_LIMIT", constants.DefaultRateLimit),
			MaxFrameSize:    int64(getEnvAsInt("MAX_FRAME_SIZE", constants.DefaultMaxFrameSize)),
			PathPrefix:      getEnv("CHATRELAY_PATH_PREFIX", constants.DefaultPathPrefix),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{}),
		},
		Relay: RelayConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", constants.DefaultRedisDB),
		},
		Database: DatabaseConfig{
			URI:            getEnv("MONGO_URI", constants.DefaultMongoURI),
			Database:       getEnv("MONGO_DATABASE", constants.DefaultDatabase),
			Collection:     getEnv("MONGO_COLLECTION", constants.DefaultMembership),
			ConnectTimeout: getEnvAsDuration("MONGO_CONNECT_TIMEOUT", constants.MongoConnectTimeout),
		},
		Delivery: DeliveryConfig{
			LongPollTimeout: getEnvAsDuration("LONG_POLL_TIMEOUT", constants.DefaultLongPollTimeout),
			SSETimeout:      getEnvAsDuration("SSE_TIMEOUT", constants.DefaultSSETimeout),
			ExpiryInterval:  getEnvAsDuration("EXPIRY_INTERVAL", constants.HeartbeatInterval),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server port must be between 1 and 65535"))
	}
	if c.Server.JWTSecret == "" {
		errs = append(errs, errors.New("JWT secret is required"))
	} else {
		// Check minimum length (32 characters for strong security)
		if len(c.Server.JWTSecret) < constants.MinJWTSecretLength {
			errs = append(errs, fmt.Errorf(
				"JWT secret must be at least %d characters (got %d). "+
					"Generate a strong secret with: openssl rand -base64 32",
				constants.MinJWTSecretLength, len(c.Server.JWTSecret)))
		}

		// Check for common weak secrets
		lowerSecret := strings.ToLower(c.Server.JWTSecret)
		for _, weak := range constants.WeakSecrets {
			if strings.Contains(lowerSecret, weak) {
				errs = append(errs, fmt.Errorf(
					"JWT secret appears to be weak (contains '%s'). "+
						"Use a cryptographically random secret generated with: openssl rand -base64 32",
					weak))
				break
			}
		}
	}
	if c.Server.MaxConnsPerUser <= 0 {
		errs = append(errs, errors.New("max connections per user must be positive"))
	}
	if c.Server.RateLimit <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.Server.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("max frame size must be positive"))
	}
	if c.Server.PathPrefix == "" {
		errs = append(errs, errors.New("path prefix cannot be empty"))
	} else if !strings.HasPrefix(c.Server.PathPrefix, "/") {
		errs = append(errs, errors.New("path prefix must start with '/'"))
	}

	// Validate database config: the URI is optional, but a configured store
	// needs a database and collection to read membership from
	if c.Database.URI != "" {
		if c.Database.Database == "" {
			errs = append(errs, errors.New("database name is required when MONGO_URI is set"))
		}
		if c.Database.Collection == "" {
			errs = append(errs, errors.New("database collection is required when MONGO_URI is set"))
		}
	}

	// Validate delivery config
	if c.Delivery.LongPollTimeout <= 0 {
		errs = append(errs, errors.New("long-poll timeout must be positive"))
	}
	if c.Delivery.SSETimeout <= 0 {
		errs = append(errs, errors.New("SSE timeout must be positive"))
	}
	if c.Delivery.ExpiryInterval <= 0 {
		errs = append(errs, errors.New("expiry interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// Simple comma-separated parsing
	result := []string{}
	for _, v := range strings.Split(valueStr, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Token         TokenConfig
	Identity      IdentityConfig
	Federated     FederatedConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds challenge store configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TokenConfig holds session credential configuration.
// Secret is the master secret; the session signing key and the
// tenant-pointer MAC key are both derived from it and never share material.
type TokenConfig struct {
	Secret         string
	Issuer         string
	Lifetime       time.Duration
	SessionCookie  string
	PointerCookie  string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieSameSite string
}

// IdentityConfig holds OTP challenge configuration
type IdentityConfig struct {
	CodeDigits      int
	ChallengeTTL    time.Duration
	MaxAttempts     int
	DefaultDialCode string
}

// FederatedConfig holds federated sign-in configuration
type FederatedConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	RedirectBaseURL    string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "ledgergate"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "ledgergate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
		},
		Token: TokenConfig{
			Secret:         getEnv("AUTH_SECRET", ""),
			Issuer:         getEnv("AUTH_ISSUER", "ledgergate"),
			Lifetime:       parseDuration("AUTH_SESSION_LIFETIME", "24h"),
			SessionCookie:  getEnv("AUTH_SESSION_COOKIE", "lg_session"),
			PointerCookie:  getEnv("AUTH_POINTER_COOKIE", "lg_business"),
			CookieDomain:   getEnv("AUTH_COOKIE_DOMAIN", ""),
			CookiePath:     getEnv("AUTH_COOKIE_PATH", "/"),
			CookieSecure:   parseBool("AUTH_COOKIE_SECURE", false),
			CookieSameSite: getEnv("AUTH_COOKIE_SAME_SITE", "Lax"),
		},
		Identity: IdentityConfig{
			CodeDigits:      parseInt("IDENTITY_OTP_DIGITS", 6),
			ChallengeTTL:    parseDuration("IDENTITY_CHALLENGE_TTL", "5m"),
			MaxAttempts:     parseInt("IDENTITY_MAX_ATTEMPTS", 5),
			DefaultDialCode: getEnv("IDENTITY_DEFAULT_DIAL_CODE", "+91"),
		},
		Federated: FederatedConfig{
			GoogleClientID:     getEnv("FEDERATED_GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("FEDERATED_GOOGLE_CLIENT_SECRET", ""),
			RedirectBaseURL:    getEnv("FEDERATED_REDIRECT_BASE_URL", "http://localhost:8080"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "ledgergate"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if len(c.Token.Secret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if !strings.HasPrefix(c.Identity.DefaultDialCode, "+") {
		return fmt.Errorf("IDENTITY_DEFAULT_DIAL_CODE must start with '+'")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

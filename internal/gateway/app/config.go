package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
)

type Config struct {
	Issuer         string // Optional: issuer claim for tokens (default: tabgate)
	BootstrapToken string // Optional: token required to perform bootstrap

	Algorithm      string        // Optional: JWT signing algorithm (ES256, EdDSA) (default: EdDSA)
	NumKeys        int           // Optional: number of signing keys (default: 3, min: 1, max: 10)
	KeyStorageMode string        // Optional: key storage mode (ephemeral, persistent) (default: ephemeral)
	KeyGracePeriod time.Duration // Optional: how long a persisted key verifies (default: 30 days)
	MasterKeyPath  string        // Optional: master key file sealing persisted keys
	DatabaseFile   string        // Optional: SQLite database file (default: ./gateway.db)
	PepperFile     string        // Optional: password pepper file (default: ./pepper)

	KVDriver string // Optional: memory or redis (default: memory)
	RedisURL string // Required when KVDriver is redis

	RulesFile string // Optional: YAML rule table watched for changes

	AccessTTL        time.Duration // Access token lifetime (default: 15m)
	RefreshTTL       time.Duration // Refresh token lifetime (default: 7d)
	MaxLoginFailures int           // Failures before lockout (default: 5)
	LockoutDuration  time.Duration // Lockout length (default: 15m)

	MaxMessages    int           // Messages per connection per window (default: 30)
	RateWindow     time.Duration // Rate window (default: 60s)
	IdleTimeout    time.Duration // Idle connection timeout (default: 30m)
	ReapInterval   time.Duration // Idle sweep interval (default: 1m)
	SendQueue      int           // Outbound frames buffered per connection (default: 64)
	AllowedOrigins []string      // Websocket origin patterns, comma separated

	BootstrapAdmin    string // Optional: admin username created at startup on an empty store
	BootstrapPassword string // Optional: password for BootstrapAdmin

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:         getEnvOrDefault("GATEWAY_ISSUER", "tabgate"),
		BootstrapToken: os.Getenv("GATEWAY_BOOTSTRAP_TOKEN"),

		Algorithm:      getEnvOrDefault("GATEWAY_ALGORITHM", "EdDSA"),
		NumKeys:        getEnvIntOrDefault("GATEWAY_NUM_KEYS", 0),
		KeyStorageMode: getEnvOrDefault("GATEWAY_KEY_STORAGE_MODE", "ephemeral"),
		KeyGracePeriod: getEnvDurationOrDefault("GATEWAY_KEY_GRACE_PERIOD", 30*24*time.Hour),
		MasterKeyPath:  os.Getenv("GATEWAY_MASTER_KEY_PATH"),
		DatabaseFile:   getEnvOrDefault("GATEWAY_DATABASE_FILE", "gateway.db"),
		PepperFile:     getEnvOrDefault("GATEWAY_PEPPER_FILE", "pepper"),

		KVDriver: getEnvOrDefault("GATEWAY_KV_DRIVER", "memory"),
		RedisURL: os.Getenv("GATEWAY_REDIS_URL"),

		RulesFile: os.Getenv("GATEWAY_RULES_FILE"),

		AccessTTL:        getEnvDurationOrDefault("GATEWAY_ACCESS_TTL", credential.DefaultAccessTTL),
		RefreshTTL:       getEnvDurationOrDefault("GATEWAY_REFRESH_TTL", credential.DefaultRefreshTTL),
		MaxLoginFailures: getEnvIntOrDefault("GATEWAY_MAX_LOGIN_FAILURES", credential.DefaultMaxLoginFailures),
		LockoutDuration:  getEnvDurationOrDefault("GATEWAY_LOCKOUT_DURATION", credential.DefaultLockoutDuration),

		MaxMessages:    getEnvIntOrDefault("GATEWAY_MAX_MESSAGES", hub.DefaultMaxMessages),
		RateWindow:     getEnvDurationOrDefault("GATEWAY_RATE_WINDOW", hub.DefaultRateWindow),
		IdleTimeout:    getEnvDurationOrDefault("GATEWAY_IDLE_TIMEOUT", hub.DefaultIdleTimeout),
		ReapInterval:   getEnvDurationOrDefault("GATEWAY_REAP_INTERVAL", time.Minute),
		SendQueue:      getEnvIntOrDefault("GATEWAY_SEND_QUEUE", hub.DefaultSendQueue),
		AllowedOrigins: getEnvListOrDefault("GATEWAY_ALLOWED_ORIGINS", nil),

		BootstrapAdmin:    os.Getenv("GATEWAY_BOOTSTRAP_ADMIN"),
		BootstrapPassword: os.Getenv("GATEWAY_BOOTSTRAP_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

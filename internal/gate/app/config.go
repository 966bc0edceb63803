package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/coralstack/coraldb/internal/gate/catalog"
	"github.com/coralstack/coraldb/pkg/duplex"
)

// Development-only fallback secrets. LoadConfig refuses to start in prod
// when the real secrets are unset.
const (
	devAccessSecret  = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"
)

type Config struct {
	Host   string // Gate listen host (default: localhost)
	Port   int    // Gate listen port (default: 3351)
	Secure bool   // Serve TLS (default: false)

	TLSCert string // Path to the TLS certificate (required when Secure)
	TLSKey  string // Path to the TLS key (required when Secure)

	AccessTokenSecret    string        // HS256 secret for access tokens
	RefreshTokenSecret   string        // HS256 secret for refresh tokens
	AccessTokenLifetime  time.Duration // 0 disables access-token expiry (default: 1h)
	RefreshTokenLifetime time.Duration // Refresh tokens always expire (default: 24h)

	DataDir     string // Storage root for data collections (default: .data)
	InternalDir string // Storage root for credential collections (default: .internal)

	ShardedCollections []catalog.ShardedCollectionDef // Parsed from GATE_SHARDED_COLLECTIONS

	AuthRateLimit duplex.RateLimitConfig // Throttle for the authenticate command

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	// InsecureSecrets is set when a dev fallback secret is in use, so the
	// application can log loudly about it.
	InsecureSecrets bool
}

// LoadConfig reads the environment. It fails when ENV=prod and either
// token secret is unset: the insecure literal fallbacks are a dev
// convenience only.
func LoadConfig() (Config, error) {
	cfg := Config{
		Host:                 getEnvOrDefault("GATE_HOST", "localhost"),
		Port:                 getEnvIntOrDefault("GATE_PORT", 3351),
		Secure:               getEnvBoolOrDefault("GATE_SECURE", false),
		TLSCert:              os.Getenv("GATE_TLS_CERT"),
		TLSKey:               os.Getenv("GATE_TLS_KEY"),
		AccessTokenSecret:    os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret:   os.Getenv("REFRESH_TOKEN_SECRET"),
		AccessTokenLifetime:  getEnvDurationOrDefault("ACCESS_TOKEN_LIFETIME", time.Hour),
		RefreshTokenLifetime: getEnvDurationOrDefault("REFRESH_TOKEN_LIFETIME", 24*time.Hour),
		DataDir:              getEnvOrDefault("GATE_DATA_DIR", ".data"),
		InternalDir:          getEnvOrDefault("GATE_INTERNAL_DIR", ".internal"),
		AuthRateLimit:        duplex.ParseRateLimitFromEnv("AUTH", duplex.AuthLimit),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if raw := os.Getenv("GATE_SHARDED_COLLECTIONS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.ShardedCollections); err != nil {
			return Config{}, fmt.Errorf("config: parse GATE_SHARDED_COLLECTIONS: %w", err)
		}
	}

	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		if cfg.Env == "prod" {
			return Config{}, fmt.Errorf("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set when ENV=prod")
		}
		cfg.InsecureSecrets = true
		if cfg.AccessTokenSecret == "" {
			cfg.AccessTokenSecret = devAccessSecret
		}
		if cfg.RefreshTokenSecret == "" {
			cfg.RefreshTokenSecret = devRefreshSecret
		}
	}

	if cfg.Secure && (cfg.TLSCert == "" || cfg.TLSKey == "") {
		return Config{}, fmt.Errorf("config: GATE_TLS_CERT and GATE_TLS_KEY must be set when GATE_SECURE=true")
	}

	return cfg, nil
}

// Addr is the host:port the gate listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
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

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

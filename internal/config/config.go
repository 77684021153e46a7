// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment execution backend
	BackendURL    string // Base URL of the payment-execution service
	BackendAPIKey string

	// Signed-intent verification
	ChainID        int64  // EIP-712 domain chain id
	DomainName     string // EIP-712 domain name
	DomainVersion  string // EIP-712 domain version
	ExpectedSigner string // If set, recovered signer must match (0x...)
	ExplorerURL    string // Base URL for transaction explorer links

	// Abuse protection
	AbuseThreshold int           // Failed requests before auto-block
	AbuseWindow    time.Duration // Failure counting window
	BlockDuration  time.Duration // Default duration for explicit blocks
	NonceRetention time.Duration // How long consumed nonces are kept
	RateLimitRPM   int           // Requests per minute per client

	// Admin
	AdminSecret string // X-Admin-Secret for the block endpoint

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Arc testnet defaults
const (
	DefaultChainID        = 5042002 // Arc Testnet
	DefaultDomainName     = "OmniAgentPay"
	DefaultDomainVersion  = "1"
	DefaultExplorerURL    = "https://testnet.arcscan.app"
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultAbuseThreshold = 50
	DefaultAbuseWindow    = 15 * time.Minute
	DefaultBlockDuration  = time.Hour
	DefaultNonceRetention = time.Hour
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		BackendURL:     os.Getenv("BACKEND_URL"),  // Required, no default
		BackendAPIKey:  os.Getenv("BACKEND_API_KEY"),
		ChainID:        getEnvInt64("CHAIN_ID", DefaultChainID),
		DomainName:     getEnv("INTENT_DOMAIN_NAME", DefaultDomainName),
		DomainVersion:  getEnv("INTENT_DOMAIN_VERSION", DefaultDomainVersion),
		ExpectedSigner: os.Getenv("EXPECTED_SIGNER"),
		ExplorerURL:    getEnv("EXPLORER_URL", DefaultExplorerURL),
		AbuseThreshold: int(getEnvInt64("ABUSE_THRESHOLD", DefaultAbuseThreshold)),
		AbuseWindow:    getEnvDuration("ABUSE_WINDOW", DefaultAbuseWindow),
		BlockDuration:  getEnvDuration("BLOCK_DURATION", DefaultBlockDuration),
		NonceRetention: getEnvDuration("NONCE_RETENTION", DefaultNonceRetention),
		RateLimitRPM:   int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		AdminSecret:    os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}

	if c.AbuseThreshold <= 0 {
		return fmt.Errorf("ABUSE_THRESHOLD must be positive")
	}
	if c.AbuseWindow <= 0 {
		return fmt.Errorf("ABUSE_WINDOW must be positive")
	}
	if c.NonceRetention <= 0 {
		return fmt.Errorf("NONCE_RETENTION must be positive")
	}

	if c.ExpectedSigner != "" {
		signer := c.ExpectedSigner
		if len(signer) != 42 || signer[:2] != "0x" {
			return fmt.Errorf("EXPECTED_SIGNER must be a 0x-prefixed address (40 hex chars)")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

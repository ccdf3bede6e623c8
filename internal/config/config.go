// Package config loads the engine's runtime configuration from environment
// variables, grounded on the teacher's internal/config/config.go: the same
// getEnv/getEnvAsInt/getEnvAsBool/getEnvAsDuration helper shape, generalized
// with an Evaluator section replacing the teacher's arbitrage-specific
// WebSocket/risk tuning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every section of the engine's runtime configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Evaluator EvaluatorConfig
	Exchange  ExchangeConfig
	Logging   LoggingConfig
}

// ServerConfig configures the operability HTTP surface (health/metrics/pprof).
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig configures at-rest encryption of exchange API credentials
// (spec.md's SPEC_FULL §4: golang.org/x/crypto/pbkdf2 key derivation).
// EncryptionPassphrase is an operator-chosen secret; EncryptionSalt is
// base64-encoded and must stay fixed across restarts (generate once via
// crypto.GenerateSalt and persist it alongside the deployment).
type SecurityConfig struct {
	EncryptionPassphrase string
	EncryptionSalt       string
}

// EvaluatorConfig tunes the shared evaluator's cycle pacing (its first four
// fields match evaluator.Config's fields one for one) and carries
// OrderTimeout, the DCA executor's per-order placement deadline.
type EvaluatorConfig struct {
	CyclePeriod       time.Duration
	BarLimit          int
	MarketDataTimeout time.Duration
	WorkerPoolSize    int
	OrderTimeout      time.Duration
}

// ExchangeConfig holds the live exchange's encrypted credentials. Both
// fields are base64(AES-256-GCM(plaintext)) as produced by pkg/crypto.Encrypt
// against the key SecurityConfig derives.
type ExchangeConfig struct {
	Name              string
	APIKeyEncrypted   string
	APISecretEncrypted string
	QuoteAsset        string
	PaperTrading      bool
	PaperInitialBalance float64
	PaperFeeRate      float64
	PaperSlippageBps  float64
	TickInterval      time.Duration
}

// LoggingConfig configures pkg/utils's zap-backed logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads Config from environment variables, applying the teacher's
// defaulting convention.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "condition_engine"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionPassphrase: getEnv("ENCRYPTION_PASSPHRASE", ""),
			EncryptionSalt:       getEnv("ENCRYPTION_SALT", ""),
		},
		Evaluator: EvaluatorConfig{
			CyclePeriod:       getEnvAsDuration("EVALUATOR_CYCLE_PERIOD", 60*time.Second),
			BarLimit:          getEnvAsInt("EVALUATOR_BAR_LIMIT", 200),
			MarketDataTimeout: getEnvAsDuration("EVALUATOR_MARKET_DATA_TIMEOUT", 10*time.Second),
			WorkerPoolSize:    getEnvAsInt("EVALUATOR_WORKER_POOL_SIZE", 8),
			OrderTimeout:      getEnvAsDuration("EVALUATOR_ORDER_TIMEOUT", 15*time.Second),
		},
		Exchange: ExchangeConfig{
			Name:                getEnv("EXCHANGE_NAME", "binance"),
			APIKeyEncrypted:     getEnv("EXCHANGE_API_KEY_ENCRYPTED", ""),
			APISecretEncrypted:  getEnv("EXCHANGE_API_SECRET_ENCRYPTED", ""),
			QuoteAsset:          getEnv("EXCHANGE_QUOTE_ASSET", "USDT"),
			PaperTrading:        getEnvAsBool("PAPER_TRADING", true),
			PaperInitialBalance: getEnvAsFloat("PAPER_INITIAL_BALANCE", 10000),
			PaperFeeRate:        getEnvAsFloat("PAPER_FEE_RATE", 0.001),
			PaperSlippageBps:    getEnvAsFloat("PAPER_SLIPPAGE_BPS", 0),
			TickInterval:        getEnvAsDuration("TICK_INTERVAL", 1*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if !cfg.Exchange.PaperTrading {
		if cfg.Security.EncryptionPassphrase == "" {
			return nil, fmt.Errorf("ENCRYPTION_PASSPHRASE is required to decrypt exchange credentials when PAPER_TRADING=false")
		}
		if cfg.Security.EncryptionSalt == "" {
			return nil, fmt.Errorf("ENCRYPTION_SALT is required to decrypt exchange credentials when PAPER_TRADING=false")
		}
		if cfg.Exchange.APIKeyEncrypted == "" || cfg.Exchange.APISecretEncrypted == "" {
			return nil, fmt.Errorf("EXCHANGE_API_KEY_ENCRYPTED and EXCHANGE_API_SECRET_ENCRYPTED are required when PAPER_TRADING=false")
		}
	}

	return cfg, nil
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
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

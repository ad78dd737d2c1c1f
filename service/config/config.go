package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Config holds the worker configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Process configuration
	MetricsAddr string
	LogLevel    string

	// Optional audit sinks; empty disables them
	DatabaseURL string
	NATSURL     string

	// Solana configuration
	SolanaRPCURL     string
	SolanaSendRPCURL string // defaults to SolanaRPCURL
	RPCRateLimit     float64
	ConfirmTimeout   time.Duration

	// Distributor targets
	ProgramID   solana.PublicKey
	Base        solana.PublicKey
	Mint        solana.PublicKey
	KeypairPath string
	PriorityFee *uint64

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// DefaultTaskQueue is the Temporal task queue shared by the CLI and the worker.
const DefaultTaskQueue = "distadmin-reconcile"

// Load reads configuration from environment variables and validates all required fields.
// Returns an error listing every missing or invalid value.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.SolanaSendRPCURL = getEnvOrDefault("SOLANA_SEND_RPC_URL", cfg.SolanaRPCURL)

	rateLimit, err := parseFloat("RPC_RATE_LIMIT", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRateLimit = rateLimit
	}

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "90s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	cfg.ProgramID, err = parsePublicKey("PROGRAM_ID")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Base, err = parsePublicKey("BASE")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Mint, err = parsePublicKey("MINT")
	if err != nil {
		errs = append(errs, err)
	}

	cfg.KeypairPath = os.Getenv("KEYPAIR_PATH")
	if cfg.KeypairPath == "" {
		errs = append(errs, fmt.Errorf("KEYPAIR_PATH is required"))
	}

	cfg.PriorityFee, err = parseOptionalUint("PRIORITY_FEE")
	if err != nil {
		errs = append(errs, err)
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", DefaultTaskQueue)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.ProgramID.IsZero() {
		errs = append(errs, fmt.Errorf("ProgramID is required"))
	}

	if c.Base.IsZero() {
		errs = append(errs, fmt.Errorf("Base is required"))
	}

	if c.Mint.IsZero() {
		errs = append(errs, fmt.Errorf("Mint is required"))
	}

	if c.KeypairPath == "" {
		errs = append(errs, fmt.Errorf("KeypairPath is required"))
	}

	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit must not be negative"))
	}

	if c.ConfirmTimeout < time.Second {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least 1 second"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseOptionalUint returns nil when key is unset.
func parseOptionalUint(key string) (*uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return &result, nil
}

// parsePublicKey parses a required base-58 public key.
func parsePublicKey(key string) (solana.PublicKey, error) {
	value := os.Getenv(key)
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", key)
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: invalid public key %q: %w", key, value, err)
	}
	return pk, nil
}

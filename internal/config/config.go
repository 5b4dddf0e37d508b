package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	ListenAddr  string

	// Ledger constants, canonical base units.
	CapacityLimit   decimal.Decimal
	WithdrawalLimit decimal.Decimal

	// Asset handles and precisions.
	StableAsset    string
	StableDecimals uint8
	NativeDecimals uint8
	FeedDecimals   uint8

	// External collaborators.
	OracleURL     string
	CustodyURL    string
	RouterURL     string
	RouterSpender string

	PriceStaleness time.Duration
	SwapDeadline   time.Duration

	// Storage and ops.
	DatabaseURL    string
	RedisAddr      string
	JournalPath    string
	JournalSealKey string
	JWKSURL        string

	// TLS material for the listener. Both paths must be set together; the
	// client CA is optional and turns on mutual TLS.
	TLSCertFile     string
	TLSKeyFile      string
	TLSClientCAFile string

	MaxBodyBytes int64
	RateLimitRPS int
	IPAllowlist  []string
}

// Load loads configuration from environment variables. Development and
// testing may omit the storage and auth endpoints; production requires them.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    envOr("APP_ENV", "development"),
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		StableAsset:    os.Getenv("STABLE_ASSET"),
		OracleURL:      os.Getenv("ORACLE_URL"),
		CustodyURL:     os.Getenv("CUSTODY_URL"),
		RouterURL:      os.Getenv("ROUTER_URL"),
		RouterSpender:  os.Getenv("ROUTER_SPENDER"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		JournalPath:    envOr("JOURNAL_PATH", "journal.db"),
		JournalSealKey: os.Getenv("JOURNAL_SEAL_KEY"),
		JWKSURL:        os.Getenv("JWKS_URL"),

		TLSCertFile:     os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:      os.Getenv("TLS_KEY_FILE"),
		TLSClientCAFile: os.Getenv("TLS_CLIENT_CA_FILE"),
	}

	var err error
	if cfg.CapacityLimit, err = decimalEnv("CAPACITY_LIMIT"); err != nil {
		return nil, err
	}
	if cfg.WithdrawalLimit, err = decimalEnv("WITHDRAWAL_LIMIT"); err != nil {
		return nil, err
	}
	if cfg.StableDecimals, err = decimalsEnv("STABLE_DECIMALS", 6); err != nil {
		return nil, err
	}
	if cfg.NativeDecimals, err = decimalsEnv("NATIVE_DECIMALS", 18); err != nil {
		return nil, err
	}
	if cfg.FeedDecimals, err = decimalsEnv("FEED_DECIMALS", 8); err != nil {
		return nil, err
	}
	if cfg.PriceStaleness, err = durationEnv("PRICE_STALENESS", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SwapDeadline, err = durationEnv("SWAP_DEADLINE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes, err = int64Env("MAX_BODY_BYTES", 1<<20); err != nil {
		return nil, err
	}
	if rps, err := int64Env("RATE_LIMIT_RPS", 50); err != nil {
		return nil, err
	} else {
		cfg.RateLimitRPS = int(rps)
	}
	if raw := os.Getenv("IP_ALLOWLIST"); raw != "" {
		for _, cidr := range strings.Split(raw, ",") {
			if cidr = strings.TrimSpace(cidr); cidr != "" {
				cfg.IPAllowlist = append(cfg.IPAllowlist, cidr)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.StableAsset == "" {
		missing = append(missing, "STABLE_ASSET")
	}
	if c.OracleURL == "" {
		missing = append(missing, "ORACLE_URL")
	}
	if c.CustodyURL == "" {
		missing = append(missing, "CUSTODY_URL")
	}
	if c.RouterURL == "" {
		missing = append(missing, "ROUTER_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.CapacityLimit.Sign() <= 0 {
		return errors.New("CAPACITY_LIMIT must be a positive integer amount")
	}
	if c.WithdrawalLimit.Sign() <= 0 {
		return errors.New("WITHDRAWAL_LIMIT must be a positive integer amount")
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	// Production requires durable storage and authenticated access.
	if c.Environment == "production" || c.Environment == "staging" {
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
		if c.JWKSURL == "" {
			missing = append(missing, "JWKS_URL")
		}
		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func decimalEnv(key string) (decimal.Decimal, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return decimal.Zero, errors.New("missing required environment variable: " + key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func decimalsEnv(key string, fallback uint8) (uint8, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n > 18 {
		return 0, fmt.Errorf("%s: precision %d above maximum 18", key, n)
	}
	return uint8(n), nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

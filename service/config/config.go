package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Known Stellar networks and their public Horizon endpoints.
const (
	NetworkPublic  = "public"
	NetworkTestnet = "testnet"

	PublicHorizonURL  = "https://horizon.stellar.org"
	TestnetHorizonURL = "https://horizon-testnet.stellar.org"
)

// Fee comparison bases accepted by FEE_BASIS.
var validFeeBases = map[string]bool{
	"base_fee": true,
	"mode_fee": true,
	"p90_fee":  true,
}

// Config holds all application configuration.
// Values come from an optional YAML file (CONFIG_FILE) overridden by
// environment variables, and are validated at startup.
type Config struct {
	// Server configuration
	ServerAddr        string
	LogLevel          string
	Version           string
	TrustProxyHeaders bool
	// RequestTimeout bounds how long an API request waits for an answer.
	// It must stay below WriteTimeout so the error body can still be written.
	RequestTimeout time.Duration
	WriteTimeout   time.Duration

	// Horizon configuration
	Network            string
	HorizonURL         string
	HorizonTimeout     time.Duration
	HorizonMaxAttempts int
	FetchFeeStats      bool

	// Cache configuration
	CacheCapacity   int
	AccountCacheTTL time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Fee explanation policy
	FeeBasis          string
	FeeHighMultiplier int

	// LabelsFile is an optional YAML map of address to organization name.
	LabelsFile string

	// Optional archive database; empty disables it
	DatabaseURL string

	// Optional NATS event publishing; empty disables it
	NATSURL string

	// Temporal configuration (worker and archive workflows)
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// source resolves a key from the environment first, then the YAML file.
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[strings.ToLower(key)]
}

// Load reads configuration and validates all fields.
// Returns an error aggregating every invalid setting.
func Load() (*Config, error) {
	src, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = src.getOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = src.getOrDefault("LOG_LEVEL", "info")
	cfg.Version = src.getOrDefault("VERSION", "dev")
	if cfg.TrustProxyHeaders, err = src.parseBool("TRUST_PROXY_HEADERS", false); err != nil {
		errs = append(errs, err)
	}

	if cfg.RequestTimeout, err = src.parseDuration("REQUEST_TIMEOUT", "10s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.WriteTimeout, err = src.parseDuration("SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		errs = append(errs, err)
	}

	// Horizon configuration
	cfg.Network = strings.ToLower(src.getOrDefault("STELLAR_NETWORK", NetworkPublic))
	cfg.HorizonURL = src.get("HORIZON_URL")
	if cfg.HorizonURL == "" {
		switch cfg.Network {
		case NetworkPublic:
			cfg.HorizonURL = PublicHorizonURL
		case NetworkTestnet:
			cfg.HorizonURL = TestnetHorizonURL
		default:
			errs = append(errs, fmt.Errorf("STELLAR_NETWORK %q requires HORIZON_URL to be set", cfg.Network))
		}
	}
	cfg.HorizonURL = strings.TrimRight(cfg.HorizonURL, "/")

	if cfg.HorizonTimeout, err = src.parseDuration("HORIZON_TIMEOUT", "10s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.HorizonMaxAttempts, err = src.parseInt("HORIZON_MAX_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchFeeStats, err = src.parseBool("FETCH_FEE_STATS", true); err != nil {
		errs = append(errs, err)
	}

	// Cache configuration
	if cfg.CacheCapacity, err = src.parseInt("CACHE_CAPACITY", 10000); err != nil {
		errs = append(errs, err)
	}
	if cfg.AccountCacheTTL, err = src.parseDuration("ACCOUNT_CACHE_TTL", "30s"); err != nil {
		errs = append(errs, err)
	}

	// Rate limiting
	if cfg.RateLimitPerMinute, err = src.parseInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		errs = append(errs, err)
	}

	// Fee policy
	cfg.FeeBasis = src.getOrDefault("FEE_BASIS", "base_fee")
	if cfg.FeeHighMultiplier, err = src.parseInt("FEE_HIGH_MULTIPLIER", 5); err != nil {
		errs = append(errs, err)
	}

	cfg.LabelsFile = src.get("LABELS_FILE")

	// Optional integrations
	cfg.DatabaseURL = src.get("DATABASE_URL")
	cfg.NATSURL = src.get("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = src.getOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = src.getOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = src.getOrDefault("TEMPORAL_TASK_QUEUE", "stellar-explain-archive")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
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

	if c.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HorizonURL is required"))
	} else if !strings.HasPrefix(c.HorizonURL, "http://") && !strings.HasPrefix(c.HorizonURL, "https://") {
		errs = append(errs, fmt.Errorf("HorizonURL must be an http(s) URL, got %q", c.HorizonURL))
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RequestTimeout must be positive"))
	}

	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WriteTimeout must be positive"))
	} else if c.RequestTimeout >= c.WriteTimeout {
		errs = append(errs, fmt.Errorf("RequestTimeout (%s) must be shorter than WriteTimeout (%s)", c.RequestTimeout, c.WriteTimeout))
	}

	if c.HorizonTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HorizonTimeout must be positive"))
	}

	if c.HorizonMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("HorizonMaxAttempts must be at least 1"))
	}

	if c.CacheCapacity < 1 {
		errs = append(errs, fmt.Errorf("CacheCapacity must be at least 1"))
	}

	if c.AccountCacheTTL < time.Second {
		errs = append(errs, fmt.Errorf("AccountCacheTTL must be at least 1 second"))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Errorf("RateLimitPerMinute must be at least 1"))
	}

	if !validFeeBases[c.FeeBasis] {
		errs = append(errs, fmt.Errorf("FeeBasis must be one of base_fee, mode_fee, p90_fee, got %q", c.FeeBasis))
	}

	if c.FeeHighMultiplier < 1 {
		errs = append(errs, fmt.Errorf("FeeHighMultiplier must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// loadFile reads a flat YAML file whose keys are lower-cased env var names.
// An empty path yields an empty source.
func loadFile(path string) (source, error) {
	src := source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return src, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return src, fmt.Errorf("failed to parse config file: %w", err)
	}

	for k, v := range raw {
		if v == nil {
			continue
		}
		src.file[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return src, nil
}

// getOrDefault returns the configured value or a default if not set.
func (s source) getOrDefault(key, defaultValue string) string {
	if value := s.get(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration or uses a default.
func (s source) parseDuration(key, defaultValue string) (time.Duration, error) {
	value := s.getOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer or uses a default.
func (s source) parseInt(key string, defaultValue int) (int, error) {
	value := s.get(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean or uses a default.
func (s source) parseBool(key string, defaultValue bool) (bool, error) {
	value := s.get(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

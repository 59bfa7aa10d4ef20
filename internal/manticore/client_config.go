package manticore

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate       = validator.New()
	indexNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Config holds configuration for the Manticore client
type Config struct {
	BaseURL             string        `validate:"required,url"`
	SQLAddr             string        `validate:"required,hostname_port"`
	Index               string        `validate:"required"`
	Timeout             time.Duration `validate:"gt=0"`
	MaxIdleConns        int           `validate:"gte=0"`
	MaxIdleConnsPerHost int           `validate:"gte=0"`
	IdleConnTimeout     time.Duration `validate:"gte=0"`
	Retry               RetryConfig
	CircuitBreaker      CircuitBreakerConfig
	Bulk                BulkConfig
}

// BulkConfig holds configuration for bulk uploads
type BulkConfig struct {
	BatchSize           int           `validate:"gte=1"` // documents per /bulk request
	MaxConcurrentBatch  int           `validate:"gte=1"` // batches in flight
	ProgressLogInterval int           // log progress every N documents
	BatchTimeout        time.Duration // timeout for a single batch, 0 disables
}

// DefaultBulkConfig returns default bulk operation configuration
func DefaultBulkConfig() BulkConfig {
	return BulkConfig{
		BatchSize:           100,
		MaxConcurrentBatch:  3,
		ProgressLogInterval: 500,
		BatchTimeout:        60 * time.Second,
	}
}

// DefaultConfig returns default client configuration for a host
func DefaultConfig(host string) Config {
	return Config{
		BaseURL:             fmt.Sprintf("http://%s", net.JoinHostPort(host, "9308")),
		SQLAddr:             net.JoinHostPort(host, "9306"),
		Index:               "personcity",
		Timeout:             60 * time.Second,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		Retry:               DefaultRetryConfig(),
		CircuitBreaker:      DefaultCircuitBreakerConfig(),
		Bulk:                DefaultBulkConfig(),
	}
}

// Validate checks the configuration, including the index name
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid manticore config: %w", err)
	}
	if !indexNameRegex.MatchString(c.Index) {
		return fmt.Errorf("invalid manticore config: index name %q must match %s", c.Index, indexNameRegex)
	}
	return nil
}

// LoadConfigFromEnvironment builds a Config from MANTICORE_* environment variables
func LoadConfigFromEnvironment() (*Config, error) {
	host := os.Getenv("MANTICORE_HOST")
	if host == "" {
		host = "localhost"
	}
	httpPort := os.Getenv("MANTICORE_PORT")
	if httpPort == "" {
		httpPort = "9308"
	}
	sqlPort := os.Getenv("MANTICORE_SQL_PORT")
	if sqlPort == "" {
		sqlPort = "9306"
	}

	config := DefaultConfig(host)
	config.BaseURL = fmt.Sprintf("http://%s", net.JoinHostPort(host, httpPort))
	config.SQLAddr = net.JoinHostPort(host, sqlPort)

	if index := os.Getenv("MANTICORE_INDEX"); index != "" {
		config.Index = index
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"MANTICORE_HTTP_TIMEOUT", &config.Timeout},
		{"MANTICORE_HTTP_IDLE_CONN_TIMEOUT", &config.IdleConnTimeout},
		{"MANTICORE_HTTP_RETRY_BASE_DELAY", &config.Retry.BaseDelay},
		{"MANTICORE_HTTP_RETRY_MAX_DELAY", &config.Retry.MaxDelay},
		{"MANTICORE_HTTP_CB_RECOVERY_TIMEOUT", &config.CircuitBreaker.RecoveryTimeout},
		{"MANTICORE_BULK_BATCH_TIMEOUT", &config.Bulk.BatchTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"MANTICORE_HTTP_MAX_IDLE_CONNS", &config.MaxIdleConns},
		{"MANTICORE_HTTP_MAX_IDLE_CONNS_PER_HOST", &config.MaxIdleConnsPerHost},
		{"MANTICORE_HTTP_RETRY_MAX_ATTEMPTS", &config.Retry.MaxAttempts},
		{"MANTICORE_HTTP_CB_FAILURE_THRESHOLD", &config.CircuitBreaker.FailureThreshold},
		{"MANTICORE_HTTP_CB_HALF_OPEN_MAX_CALLS", &config.CircuitBreaker.HalfOpenMaxCalls},
		{"MANTICORE_BULK_BATCH_SIZE", &config.Bulk.BatchSize},
		{"MANTICORE_BULK_MAX_CONCURRENT", &config.Bulk.MaxConcurrentBatch},
	}
	for _, i := range ints {
		if v := os.Getenv(i.env); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", i.env, err)
			}
			*i.dst = parsed
		}
	}

	if v := os.Getenv("MANTICORE_HTTP_RETRY_JITTER_PERCENT"); v != "" {
		jitter, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MANTICORE_HTTP_RETRY_JITTER_PERCENT: %w", err)
		}
		config.Retry.JitterPercent = jitter
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

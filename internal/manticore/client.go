package manticore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	openapi "github.com/manticoresoftware/manticoresearch-go"
	"github.com/rs/zerolog"

	"github.com/ad/personsearch/internal/search"
)

// Client talks to Manticore Search: JSON over HTTP for documents and
// search, the OpenAPI client for schema SQL, and the MySQL protocol for counts.
type Client struct {
	config     Config
	baseURL    string
	httpClient *http.Client
	api        *openapi.APIClient
	db         *sql.DB

	circuitBreakerWithRetry *CircuitBreakerWithRetry
	metricsCollector        *MetricsCollector
	readyPollInterval       time.Duration
	log                     zerolog.Logger
}

var _ search.Index = (*Client)(nil)

// NewClient creates a Manticore client. No connection is made until first use.
func NewClient(config Config, log zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dsn := mysql.NewConfig()
	dsn.Net = "tcp"
	dsn.Addr = config.SQLAddr
	dsn.InterpolateParams = true
	dsn.Timeout = config.Timeout

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open manticore sql connection: %w", err)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(config.IdleConnTimeout)

	return newClient(config, db, log), nil
}

func newClient(config Config, db *sql.DB, log zerolog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ExpectContinueTimeout: 2 * time.Second,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ForceAttemptHTTP2:     false,
	}
	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")

	configuration := openapi.NewConfiguration()
	configuration.Servers[0].URL = baseURL
	configuration.HTTPClient = httpClient

	log = log.With().Str("component", "manticore").Str("index", config.Index).Logger()

	metricsCollector := NewMetricsCollector()
	cbr := NewCircuitBreakerWithRetry(config.CircuitBreaker, config.Retry, log)
	cbr.SetCallback(&metricsCircuitBreakerCallback{collector: metricsCollector})

	retry := cbr.retryManager.retryStats()
	log.Debug().
		Str("url", baseURL).
		Str("sql_addr", config.SQLAddr).
		Int("retry_max_attempts", retry.MaxAttempts).
		Dur("retry_base_delay", retry.BaseDelay).
		Dur("retry_max_delay", retry.MaxDelay).
		Int("cb_failure_threshold", config.CircuitBreaker.FailureThreshold).
		Msg("manticore client configured")

	return &Client{
		config:                  config,
		baseURL:                 baseURL,
		httpClient:              httpClient,
		api:                     openapi.NewAPIClient(configuration),
		db:                      db,
		circuitBreakerWithRetry: cbr,
		metricsCollector:        metricsCollector,
		readyPollInterval:       2 * time.Second,
		log:                     log,
	}
}

// IndexName returns the name of the managed index
func (c *Client) IndexName() string {
	return c.config.Index
}

// HealthCheck verifies that the HTTP endpoint answers. A 4xx (unknown table) still counts as healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(searchRequest{
		Table: c.config.Index,
		Query: map[string]any{"match_all": map[string]any{}},
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("health check: %w", newHTTPError(resp, http.MethodPost, "/search", respBody))
	}
	return nil
}

// WaitForReady polls HealthCheck until it passes or timeout elapses
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	c.log.Info().Dur("timeout", timeout).Str("url", c.baseURL).Msg("waiting for manticore")

	ticker := time.NewTicker(c.readyPollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		err := c.HealthCheck(ctx)
		if err == nil {
			c.log.Info().Int("attempts", attempt).Dur("elapsed", time.Since(start)).Msg("manticore is ready")
			return nil
		}
		c.log.Debug().Err(err).Int("attempt", attempt).Msg("manticore not ready")

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for manticore after %v: %w", time.Since(start).Round(time.Millisecond), err)
		case <-ticker.C:
		}
	}
}

// Close releases connections and logs final metrics
func (c *Client) Close() error {
	c.circuitBreakerWithRetry.Close()
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	c.metricsCollector.LogMetrics(c.log)

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("close manticore sql connection: %w", err)
		}
	}
	return nil
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	return c.metricsCollector.GetMetrics()
}

// GetCircuitBreakerStats returns the breaker state and counters
func (c *Client) GetCircuitBreakerStats() CircuitBreakerStats {
	return c.circuitBreakerWithRetry.GetCircuitBreakerStats()
}

// doJSON sends body to endpoint through the breaker and retry manager and decodes the reply into out
func (c *Client) doJSON(ctx context.Context, operation, endpoint, contentType string, body []byte, out any) error {
	start := time.Now()

	err := c.circuitBreakerWithRetry.Execute(ctx, endpoint, http.MethodPost, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return &ManticoreError{
				Message:   fmt.Sprintf("build request: %v", err),
				Endpoint:  endpoint,
				Method:    http.MethodPost,
				ErrorType: ErrorTypeValidation,
				Cause:     err,
			}
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", endpoint, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newHTTPError(resp, http.MethodPost, endpoint, respBody)
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ManticoreError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("malformed response: %v", err),
				Endpoint:   endpoint,
				Method:     http.MethodPost,
				ErrorType:  ErrorTypeValidation,
				RawBody:    truncateString(string(respBody), 500),
				Cause:      err,
			}
		}
		return nil
	})

	duration := time.Since(start)
	c.metricsCollector.RecordRequest(operation, duration, err)
	c.log.Debug().
		Str("operation", operation).
		Str("endpoint", endpoint).
		Int("body_bytes", len(body)).
		Dur("duration", duration).
		Err(err).
		Msg("manticore request")

	return err
}

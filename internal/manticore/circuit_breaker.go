package manticore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	// CircuitBreakerClosed - normal operation, requests pass through
	CircuitBreakerClosed CircuitBreakerState = iota
	// CircuitBreakerOpen - failing fast, requests rejected immediately
	CircuitBreakerOpen
	// CircuitBreakerHalfOpen - testing recovery, limited requests allowed
	CircuitBreakerHalfOpen
)

// String returns the string representation of CircuitBreakerState
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "CLOSED"
	case CircuitBreakerOpen:
		return "OPEN"
	case CircuitBreakerHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" validate:"gte=1"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" validate:"gt=0"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls" validate:"gte=1"`

	SuccessThreshold     int           `json:"success_threshold"`      // successes needed to close from half-open
	MinRequestThreshold  int           `json:"min_request_threshold"`  // requests seen before the failure rate counts
	FailureRateThreshold float64       `json:"failure_rate_threshold"` // 0.0-1.0
	SlidingWindowSize    int           `json:"sliding_window_size"`
	MonitoringInterval   time.Duration `json:"monitoring_interval"`
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:     5,
		RecoveryTimeout:      30 * time.Second,
		HalfOpenMaxCalls:     3,
		SuccessThreshold:     2,
		MinRequestThreshold:  5,
		FailureRateThreshold: 0.5,
		SlidingWindowSize:    20,
		MonitoringInterval:   5 * time.Second,
	}
}

// CircuitBreakerCallback is notified on state changes
type CircuitBreakerCallback interface {
	OnStateChange(oldState, newState CircuitBreakerState, reason string)
}

// requestResult is one entry of the sliding failure window
type requestResult struct {
	timestamp time.Time
	success   bool
}

// CircuitBreakerStats provides statistics about circuit breaker operation
type CircuitBreakerStats struct {
	State                CircuitBreakerState `json:"state"`
	ConsecutiveFailures  int                 `json:"consecutive_failures"`
	ConsecutiveSuccesses int                 `json:"consecutive_successes"`
	TotalRequests        int64               `json:"total_requests"`
	TotalFailures        int64               `json:"total_failures"`
	TotalSuccesses       int64               `json:"total_successes"`
	TotalRejections      int64               `json:"total_rejections"`
	CurrentFailureRate   float64             `json:"current_failure_rate"`
	LastStateChange      time.Time           `json:"last_state_change"`
	StateChanges         int64               `json:"state_changes"`
}

// CircuitBreaker stops calling Manticore after repeated failures
type CircuitBreaker struct {
	config CircuitBreakerConfig
	log    zerolog.Logger

	mu sync.Mutex

	state           CircuitBreakerState
	lastStateChange time.Time
	lastFailureTime time.Time

	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenCalls        int

	window      []requestResult
	windowIndex int

	stats    CircuitBreakerStats
	callback CircuitBreakerCallback

	stopMonitoring chan struct{}
	stopOnce       sync.Once
}

// NewCircuitBreaker creates a circuit breaker and starts its status logger
func NewCircuitBreaker(config CircuitBreakerConfig, log zerolog.Logger) *CircuitBreaker {
	if config.SlidingWindowSize <= 0 {
		config.SlidingWindowSize = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}

	cb := &CircuitBreaker{
		config:          config,
		log:             log.With().Str("component", "circuit_breaker").Logger(),
		state:           CircuitBreakerClosed,
		lastStateChange: time.Now(),
		window:          make([]requestResult, config.SlidingWindowSize),
		stopMonitoring:  make(chan struct{}),
	}

	if config.MonitoringInterval > 0 {
		go cb.monitoringLoop()
	}
	return cb
}

// SetCallback sets the callback for state change notifications
func (cb *CircuitBreaker) SetCallback(callback CircuitBreakerCallback) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.callback = callback
}

// Execute runs operation unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &ManticoreError{
			Message:   fmt.Sprintf("circuit breaker is %s: too many failures", cb.GetState()),
			Retryable: true,
			ErrorType: ErrorTypeCircuitBreaker,
		}
	}

	err := operation(ctx)
	switch {
	case err == nil:
		cb.recordSuccess()
	case isCallerError(err):
		// client-side errors say nothing about the server's health
		cb.recordSuccess()
	default:
		cb.recordFailure()
	}
	return err
}

// isCallerError reports errors caused by the request rather than the service
func isCallerError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var manticoreErr *ManticoreError
	if errors.As(err, &manticoreErr) {
		return manticoreErr.ErrorType == ErrorTypeHTTPClient || manticoreErr.ErrorType == ErrorTypeValidation
	}
	return false
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		return true
	case CircuitBreakerOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitBreakerHalfOpen, "recovery timeout reached")
			cb.halfOpenCalls++
			return true
		}
		cb.stats.TotalRejections++
		return false
	case CircuitBreakerHalfOpen:
		if cb.halfOpenCalls < cb.config.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		cb.stats.TotalRejections++
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++
	cb.stats.TotalSuccesses++
	cb.addToWindow(true)

	switch cb.state {
	case CircuitBreakerHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitBreakerClosed, "successful recovery")
		}
	case CircuitBreakerClosed:
		cb.consecutiveFailures = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++
	cb.stats.TotalFailures++
	cb.lastFailureTime = time.Now()
	cb.addToWindow(false)

	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0

	switch cb.state {
	case CircuitBreakerClosed:
		if cb.shouldOpen() {
			cb.transitionTo(CircuitBreakerOpen, fmt.Sprintf("too many failures (%d)", cb.consecutiveFailures))
		}
	case CircuitBreakerHalfOpen:
		cb.transitionTo(CircuitBreakerOpen, "failure during recovery test")
	}
}

// shouldOpen checks consecutive failures, then the windowed failure rate. Caller holds mu.
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFailures >= cb.config.FailureThreshold {
		return true
	}
	if cb.config.FailureRateThreshold <= 0 || cb.stats.TotalRequests < int64(cb.config.MinRequestThreshold) {
		return false
	}
	return cb.failureRate() >= cb.config.FailureRateThreshold
}

// failureRate computes the failure share of recent window entries. Caller holds mu.
func (cb *CircuitBreaker) failureRate() float64 {
	horizon := cb.config.MonitoringInterval * 5
	if horizon <= 0 {
		horizon = time.Minute
	}
	cutoff := time.Now().Add(-horizon)

	total, failures := 0, 0
	for _, r := range cb.window {
		if r.timestamp.IsZero() || r.timestamp.Before(cutoff) {
			continue
		}
		total++
		if !r.success {
			failures++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failures) / float64(total)
}

func (cb *CircuitBreaker) addToWindow(success bool) {
	cb.window[cb.windowIndex] = requestResult{timestamp: time.Now(), success: success}
	cb.windowIndex = (cb.windowIndex + 1) % len(cb.window)
}

// transitionTo moves the breaker to state and notifies the callback. Caller holds mu.
func (cb *CircuitBreaker) transitionTo(state CircuitBreakerState, reason string) {
	if cb.state == state {
		return
	}
	old := cb.state
	cb.state = state
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0
	cb.consecutiveSuccesses = 0
	if state == CircuitBreakerClosed {
		cb.consecutiveFailures = 0
	}
	cb.stats.StateChanges++

	cb.log.Warn().
		Str("from", old.String()).
		Str("to", state.String()).
		Str("reason", reason).
		Msg("circuit breaker state change")

	if cb.callback != nil {
		cb.callback.OnStateChange(old, state, reason)
	}
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns a snapshot of circuit breaker statistics
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := cb.stats
	stats.State = cb.state
	stats.ConsecutiveFailures = cb.consecutiveFailures
	stats.ConsecutiveSuccesses = cb.consecutiveSuccesses
	stats.CurrentFailureRate = cb.failureRate()
	stats.LastStateChange = cb.lastStateChange
	return stats
}

// reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitBreakerClosed, "manual reset")
	cb.consecutiveFailures = 0
}

// forceOpen manually forces the circuit breaker to open state
func (cb *CircuitBreaker) forceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailureTime = time.Now()
	cb.transitionTo(CircuitBreakerOpen, "forced open")
}

func (cb *CircuitBreaker) monitoringLoop() {
	ticker := time.NewTicker(cb.config.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := cb.GetStats()
			if stats.TotalRequests > 0 {
				cb.log.Debug().
					Str("state", stats.State.String()).
					Int64("failures", stats.TotalFailures).
					Int64("successes", stats.TotalSuccesses).
					Float64("failure_rate", stats.CurrentFailureRate).
					Msg("circuit breaker status")
			}
		case <-cb.stopMonitoring:
			return
		}
	}
}

// Close stops the background status logger
func (cb *CircuitBreaker) Close() {
	cb.stopOnce.Do(func() { close(cb.stopMonitoring) })
}

// CircuitBreakerWithRetry runs every attempt of a retried operation through the breaker
type CircuitBreakerWithRetry struct {
	circuitBreaker *CircuitBreaker
	retryManager   *RetryManager
}

// NewCircuitBreakerWithRetry creates a circuit breaker integrated with a retry manager
func NewCircuitBreakerWithRetry(cbConfig CircuitBreakerConfig, retryConfig RetryConfig, log zerolog.Logger) *CircuitBreakerWithRetry {
	return &CircuitBreakerWithRetry{
		circuitBreaker: NewCircuitBreaker(cbConfig, log),
		retryManager:   NewRetryManager(retryConfig, log),
	}
}

// SetCallback sets the callback for circuit breaker state changes
func (cbr *CircuitBreakerWithRetry) SetCallback(callback CircuitBreakerCallback) {
	cbr.circuitBreaker.SetCallback(callback)
}

// Execute executes operation with both circuit breaker protection and retry logic
func (cbr *CircuitBreakerWithRetry) Execute(ctx context.Context, endpoint, method string, operation func(ctx context.Context) error) error {
	return cbr.retryManager.Execute(ctx, endpoint, method, func(ctx context.Context, _ *RetryContext) error {
		return cbr.circuitBreaker.Execute(ctx, operation)
	})
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (cbr *CircuitBreakerWithRetry) GetCircuitBreakerStats() CircuitBreakerStats {
	return cbr.circuitBreaker.GetStats()
}

// Close shuts down the circuit breaker
func (cbr *CircuitBreakerWithRetry) Close() {
	cbr.circuitBreaker.Close()
}

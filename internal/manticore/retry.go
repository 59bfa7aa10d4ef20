package manticore

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" validate:"gte=1"`
	BaseDelay     time.Duration `json:"base_delay" validate:"gt=0"`
	MaxDelay      time.Duration `json:"max_delay" validate:"gtefield=BaseDelay"`
	JitterPercent float64       `json:"jitter_percent" validate:"gte=0,lte=1"`

	// Error-specific backoff multipliers
	TimeoutMultiplier            float64 `json:"timeout_multiplier"`
	ConnectionMultiplier         float64 `json:"connection_multiplier"`
	ServiceUnavailableMultiplier float64 `json:"service_unavailable_multiplier"`
	RateLimitMultiplier          float64 `json:"rate_limit_multiplier"`

	PerAttemptTimeout time.Duration `json:"per_attempt_timeout"`
	TotalTimeout      time.Duration `json:"total_timeout"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:                  5,
		BaseDelay:                    500 * time.Millisecond,
		MaxDelay:                     30 * time.Second,
		JitterPercent:                0.1,
		TimeoutMultiplier:            2.0,
		ConnectionMultiplier:         3.0,
		ServiceUnavailableMultiplier: 4.0,
		RateLimitMultiplier:          5.0,
		PerAttemptTimeout:            30 * time.Second,
		TotalTimeout:                 5 * time.Minute,
	}
}

// RetryManager handles retry logic with exponential backoff and jitter
type RetryManager struct {
	config          RetryConfig
	errorClassifier *ErrorClassifier
	log             zerolog.Logger
}

// NewRetryManager creates a new retry manager
func NewRetryManager(config RetryConfig, log zerolog.Logger) *RetryManager {
	return &RetryManager{
		config:          config,
		errorClassifier: NewErrorClassifier(),
		log:             log,
	}
}

// RetryContext holds per-call bookkeeping for a retried operation
type RetryContext struct {
	Attempt       int
	TotalDuration time.Duration
	LastError     error
	StartTime     time.Time
	Endpoint      string
	Method        string
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func(ctx context.Context, retryCtx *RetryContext) error

// Execute runs operation until it succeeds, fails permanently or runs out of attempts
func (rm *RetryManager) Execute(ctx context.Context, endpoint, method string, operation RetryableOperation) error {
	retryCtx := &RetryContext{
		StartTime: time.Now(),
		Endpoint:  endpoint,
		Method:    method,
	}

	operationCtx := ctx
	if rm.config.TotalTimeout > 0 {
		var cancel context.CancelFunc
		operationCtx, cancel = context.WithTimeout(ctx, rm.config.TotalTimeout)
		defer cancel()
	}

	maxAttempts := max(rm.config.MaxAttempts, 1)

	for retryCtx.Attempt < maxAttempts {
		retryCtx.Attempt++
		retryCtx.TotalDuration = time.Since(retryCtx.StartTime)

		attemptCtx, attemptCancel := operationCtx, context.CancelFunc(func() {})
		if rm.config.PerAttemptTimeout > 0 {
			attemptCtx, attemptCancel = context.WithTimeout(operationCtx, rm.config.PerAttemptTimeout)
		}

		err := operation(attemptCtx, retryCtx)
		attemptCancel()

		if err == nil {
			if retryCtx.Attempt > 1 {
				rm.log.Info().
					Int("attempts", retryCtx.Attempt).
					Dur("duration", time.Since(retryCtx.StartTime)).
					Str("method", method).
					Str("endpoint", endpoint).
					Msg("operation succeeded after retry")
			}
			return nil
		}

		retryCtx.LastError = err
		classifiedErr := rm.errorClassifier.ClassifyError(err, endpoint, method)

		if !IsRetryableError(classifiedErr) {
			rm.log.Debug().Err(classifiedErr).Int("attempt", retryCtx.Attempt).
				Str("method", method).Str("endpoint", endpoint).Msg("non-retryable error")
			return classifiedErr
		}

		if retryCtx.Attempt >= maxAttempts {
			rm.log.Warn().Err(classifiedErr).Int("max_attempts", maxAttempts).
				Str("method", method).Str("endpoint", endpoint).Msg("retry attempts exhausted")
			return &ManticoreError{
				Message:   fmt.Sprintf("max retry attempts (%d) exceeded, last error: %v", maxAttempts, classifiedErr),
				Endpoint:  endpoint,
				Method:    method,
				ErrorType: ErrorTypeRetryExhausted,
				Cause:     classifiedErr,
			}
		}

		delay := rm.calculateBackoffDelay(classifiedErr, retryCtx.Attempt)

		rm.log.Warn().Err(classifiedErr).
			Int("next_attempt", retryCtx.Attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Str("method", method).
			Str("endpoint", endpoint).
			Msg("retrying operation")

		timer := time.NewTimer(delay)
		select {
		case <-operationCtx.Done():
			timer.Stop()
			return fmt.Errorf("%s %s: %w", method, endpoint, operationCtx.Err())
		case <-timer.C:
		}
	}

	return &ManticoreError{
		Message:   fmt.Sprintf("unexpected retry loop exit after %d attempts", retryCtx.Attempt),
		Endpoint:  endpoint,
		Method:    method,
		ErrorType: ErrorTypeRetryExhausted,
	}
}

// calculateBackoffDelay calculates the delay before the next attempt
func (rm *RetryManager) calculateBackoffDelay(err error, attempt int) time.Duration {
	var manticoreErr *ManticoreError
	if errors.As(err, &manticoreErr) && manticoreErr.RetryAfter > 0 {
		return min(manticoreErr.RetryAfter, rm.config.MaxDelay)
	}

	exponentialDelay := rm.config.BaseDelay * time.Duration(1<<(attempt-1))
	adjustedDelay := time.Duration(float64(exponentialDelay) * rm.getErrorMultiplier(err))
	finalDelay := adjustedDelay + rm.calculateJitter(adjustedDelay)

	if finalDelay > rm.config.MaxDelay {
		finalDelay = rm.config.MaxDelay
	}
	if finalDelay < rm.config.BaseDelay {
		finalDelay = rm.config.BaseDelay
	}
	return finalDelay
}

// getErrorMultiplier returns the backoff multiplier for the error's type
func (rm *RetryManager) getErrorMultiplier(err error) float64 {
	errorType := ErrorTypeUnknown

	var manticoreErr *ManticoreError
	var connErr *ConnectionError
	switch {
	case errors.As(err, &manticoreErr):
		errorType = manticoreErr.ErrorType
	case errors.As(err, &connErr):
		errorType = connErr.ErrorType
	}

	multiplier := 1.0
	switch errorType {
	case ErrorTypeTimeout:
		multiplier = rm.config.TimeoutMultiplier
	case ErrorTypeConnectionRefused, ErrorTypeHTTPServer:
		multiplier = rm.config.ServiceUnavailableMultiplier
	case ErrorTypeConnectionReset, ErrorTypeNetwork:
		multiplier = rm.config.ConnectionMultiplier
	case ErrorTypeRateLimit:
		multiplier = rm.config.RateLimitMultiplier
	}
	if multiplier <= 0 {
		return 1.0
	}
	return multiplier
}

// calculateJitter adds up to JitterPercent of delay
func (rm *RetryManager) calculateJitter(delay time.Duration) time.Duration {
	if rm.config.JitterPercent <= 0 {
		return 0
	}
	maxJitter := time.Duration(float64(delay) * rm.config.JitterPercent)
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(maxJitter)))
}

// RetryStats provides information about retry configuration
type RetryStats struct {
	MaxAttempts   int           `json:"max_attempts"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	JitterPercent float64       `json:"jitter_percent"`
}

// retryStats returns the effective retry settings
func (rm *RetryManager) retryStats() RetryStats {
	return RetryStats{
		MaxAttempts:   rm.config.MaxAttempts,
		BaseDelay:     rm.config.BaseDelay,
		MaxDelay:      rm.config.MaxDelay,
		JitterPercent: rm.config.JitterPercent,
	}
}

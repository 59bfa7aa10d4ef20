package manticore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:                  3,
		BaseDelay:                    time.Millisecond,
		MaxDelay:                     10 * time.Millisecond,
		JitterPercent:                0,
		TimeoutMultiplier:            2,
		ConnectionMultiplier:         3,
		ServiceUnavailableMultiplier: 4,
		RateLimitMultiplier:          5,
	}
}

func TestRetryManager_Execute(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
		wantType  ErrorType
	}{
		{
			name:      "success first try",
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name:      "success after retryable failures",
			errs:      []error{errors.New("connection refused"), errors.New("i/o timeout"), nil},
			wantCalls: 3,
		},
		{
			name:      "non-retryable stops immediately",
			errs:      []error{&ManticoreError{StatusCode: 400, ErrorType: ErrorTypeHTTPClient}},
			wantCalls: 1,
			wantErr:   true,
			wantType:  ErrorTypeHTTPClient,
		},
		{
			name:      "exhausted",
			errs:      []error{errors.New("connection refused"), errors.New("connection refused"), errors.New("connection refused")},
			wantCalls: 3,
			wantErr:   true,
			wantType:  ErrorTypeRetryExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewRetryManager(testRetryConfig(), zerolog.Nop())

			calls := 0
			err := rm.Execute(context.Background(), "/search", "POST", func(ctx context.Context, rc *RetryContext) error {
				calls++
				assert.Equal(t, calls, rc.Attempt)
				return tt.errs[calls-1]
			})

			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var manticoreErr *ManticoreError
			require.ErrorAs(t, err, &manticoreErr)
			assert.Equal(t, tt.wantType, manticoreErr.ErrorType)
		})
	}
}

func TestRetryManager_ExhaustedKeepsCause(t *testing.T) {
	sentinel := errors.New("temporary failure in name resolution")
	rm := NewRetryManager(testRetryConfig(), zerolog.Nop())

	err := rm.Execute(context.Background(), "/bulk", "POST", func(ctx context.Context, _ *RetryContext) error {
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetryManager_ContextCancelled(t *testing.T) {
	config := testRetryConfig()
	config.BaseDelay = time.Second
	config.MaxDelay = time.Second
	rm := NewRetryManager(config, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := rm.Execute(ctx, "/search", "POST", func(ctx context.Context, _ *RetryContext) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryManager_CalculateBackoffDelay(t *testing.T) {
	config := testRetryConfig()
	config.BaseDelay = 100 * time.Millisecond
	config.MaxDelay = 5 * time.Second
	rm := NewRetryManager(config, zerolog.Nop())

	plain := &ManticoreError{ErrorType: ErrorTypeUnknown, Retryable: true}
	assert.Equal(t, 100*time.Millisecond, rm.calculateBackoffDelay(plain, 1))
	assert.Equal(t, 200*time.Millisecond, rm.calculateBackoffDelay(plain, 2))
	assert.Equal(t, 400*time.Millisecond, rm.calculateBackoffDelay(plain, 3))

	server := &ManticoreError{ErrorType: ErrorTypeHTTPServer, Retryable: true}
	assert.Equal(t, 400*time.Millisecond, rm.calculateBackoffDelay(server, 1))

	assert.Equal(t, config.MaxDelay, rm.calculateBackoffDelay(plain, 20))

	retryAfter := &ManticoreError{ErrorType: ErrorTypeRateLimit, RetryAfter: 2 * time.Second}
	assert.Equal(t, 2*time.Second, rm.calculateBackoffDelay(retryAfter, 1))
}

func TestRetryManager_GetErrorMultiplier(t *testing.T) {
	rm := NewRetryManager(testRetryConfig(), zerolog.Nop())

	tests := []struct {
		err  error
		want float64
	}{
		{&ManticoreError{ErrorType: ErrorTypeTimeout}, 2},
		{&ConnectionError{ErrorType: ErrorTypeConnectionReset}, 3},
		{&ConnectionError{ErrorType: ErrorTypeConnectionRefused}, 4},
		{&ManticoreError{ErrorType: ErrorTypeHTTPServer}, 4},
		{&ManticoreError{ErrorType: ErrorTypeRateLimit}, 5},
		{errors.New("plain"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rm.getErrorMultiplier(tt.err), "%v", tt.err)
	}
}

func TestRetryManager_CalculateJitter(t *testing.T) {
	config := testRetryConfig()
	config.JitterPercent = 0.2
	rm := NewRetryManager(config, zerolog.Nop())

	for i := 0; i < 50; i++ {
		j := rm.calculateJitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 200*time.Millisecond)
	}

	rm = NewRetryManager(testRetryConfig(), zerolog.Nop())
	assert.Zero(t, rm.calculateJitter(time.Second))
}

func TestRetryManager_HonorsRetryAfterFromResponse(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"1"}}}
	err := newHTTPError(resp, "POST", "/bulk", []byte("slow down"))

	assert.True(t, err.Retryable)
	assert.Equal(t, time.Second, err.RetryAfter)
	assert.Equal(t, time.Second, GetErrorBackoffDelay(err))
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	require.NoError(t, validate.Struct(config))
	assert.Equal(t, 5, config.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, config.BaseDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)

	stats := NewRetryManager(config, zerolog.Nop()).retryStats()
	assert.Equal(t, config.MaxAttempts, stats.MaxAttempts)
	assert.Equal(t, config.JitterPercent, stats.JitterPercent)
}

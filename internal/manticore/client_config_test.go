package manticore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvironment_Defaults(t *testing.T) {
	config, err := LoadConfigFromEnvironment()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9308", config.BaseURL)
	assert.Equal(t, "localhost:9306", config.SQLAddr)
	assert.Equal(t, "personcity", config.Index)
	assert.Equal(t, 60*time.Second, config.Timeout)
	assert.Equal(t, DefaultRetryConfig(), config.Retry)
	assert.Equal(t, DefaultBulkConfig(), config.Bulk)
}

func TestLoadConfigFromEnvironment_Overrides(t *testing.T) {
	t.Setenv("MANTICORE_HOST", "search.internal")
	t.Setenv("MANTICORE_PORT", "19308")
	t.Setenv("MANTICORE_SQL_PORT", "19306")
	t.Setenv("MANTICORE_INDEX", "people_v2")
	t.Setenv("MANTICORE_HTTP_TIMEOUT", "15s")
	t.Setenv("MANTICORE_HTTP_MAX_IDLE_CONNS", "40")
	t.Setenv("MANTICORE_HTTP_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("MANTICORE_HTTP_RETRY_JITTER_PERCENT", "0.25")
	t.Setenv("MANTICORE_HTTP_CB_FAILURE_THRESHOLD", "9")
	t.Setenv("MANTICORE_BULK_BATCH_SIZE", "250")

	config, err := LoadConfigFromEnvironment()
	require.NoError(t, err)

	assert.Equal(t, "http://search.internal:19308", config.BaseURL)
	assert.Equal(t, "search.internal:19306", config.SQLAddr)
	assert.Equal(t, "people_v2", config.Index)
	assert.Equal(t, 15*time.Second, config.Timeout)
	assert.Equal(t, 40, config.MaxIdleConns)
	assert.Equal(t, 2, config.Retry.MaxAttempts)
	assert.Equal(t, 0.25, config.Retry.JitterPercent)
	assert.Equal(t, 9, config.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 250, config.Bulk.BatchSize)
}

func TestLoadConfigFromEnvironment_Invalid(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"MANTICORE_HTTP_TIMEOUT", "soon"},
		{"MANTICORE_HTTP_RETRY_MAX_ATTEMPTS", "many"},
		{"MANTICORE_HTTP_RETRY_JITTER_PERCENT", "lots"},
		{"MANTICORE_HTTP_RETRY_JITTER_PERCENT", "3"},
		{"MANTICORE_INDEX", "1people"},
		{"MANTICORE_BULK_BATCH_SIZE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := LoadConfigFromEnvironment()
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("manticore")
	require.NoError(t, config.Validate())
	assert.Equal(t, "http://manticore:9308", config.BaseURL)
	assert.Equal(t, "manticore:9306", config.SQLAddr)

	config.Index = "bad-name"
	assert.Error(t, config.Validate())
}

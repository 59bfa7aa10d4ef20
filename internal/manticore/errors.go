package manticore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ManticoreError represents an error returned by or about a Manticore API call
type ManticoreError struct {
	StatusCode int           `json:"status_code"`
	Message    string        `json:"message"`
	Endpoint   string        `json:"endpoint"`
	Method     string        `json:"method"`
	RetryAfter time.Duration `json:"retry_after"`
	Retryable  bool          `json:"retryable"`
	ErrorType  ErrorType     `json:"error_type"`
	RawBody    string        `json:"raw_body,omitempty"`
	Cause      error         `json:"-"`
}

// Error implements the error interface
func (e *ManticoreError) Error() string {
	return fmt.Sprintf("manticore API error [%d] %s %s: %s",
		e.StatusCode, e.Method, e.Endpoint, e.Message)
}

// Unwrap returns the underlying error, if any
func (e *ManticoreError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error should be retried
func (e *ManticoreError) IsRetryable() bool {
	return e.Retryable
}

// ConnectionError represents a transport-level failure talking to Manticore
type ConnectionError struct {
	Cause        error         `json:"cause"`
	Retryable    bool          `json:"retryable"`
	BackoffDelay time.Duration `json:"backoff_delay"`
	ErrorType    ErrorType     `json:"error_type"`
	Endpoint     string        `json:"endpoint"`
	Attempt      int           `json:"attempt"`
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error to %s (attempt %d, retryable: %v): %v",
		e.Endpoint, e.Attempt, e.Retryable, e.Cause)
}

// IsRetryable returns whether this error should be retried
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// Unwrap returns the underlying error for error unwrapping
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeNetwork
	ErrorTypeTimeout
	ErrorTypeConnectionRefused
	ErrorTypeConnectionReset
	ErrorTypeDNS
	ErrorTypeHTTPClient
	ErrorTypeHTTPServer
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeValidation
	ErrorTypeCircuitBreaker
	ErrorTypeRetryExhausted
)

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnectionRefused:
		return "connection_refused"
	case ErrorTypeConnectionReset:
		return "connection_reset"
	case ErrorTypeDNS:
		return "dns"
	case ErrorTypeHTTPClient:
		return "http_client"
	case ErrorTypeHTTPServer:
		return "http_server"
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeCircuitBreaker:
		return "circuit_breaker"
	case ErrorTypeRetryExhausted:
		return "retry_exhausted"
	default:
		return "unknown"
	}
}

// ErrorClassifier sorts errors into retryable and permanent categories
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError wraps err into a ManticoreError or ConnectionError
func (ec *ErrorClassifier) ClassifyError(err error, endpoint, method string) error {
	if err == nil {
		return nil
	}

	var manticoreErr *ManticoreError
	if errors.As(err, &manticoreErr) {
		return manticoreErr
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}

	// a cancelled caller is never worth another attempt
	if errors.Is(err, context.Canceled) {
		return &ManticoreError{
			Message:   "request cancelled",
			Endpoint:  endpoint,
			Method:    method,
			ErrorType: ErrorTypeUnknown,
			Cause:     err,
		}
	}

	errorType, retryable := ec.classifyErrorType(err)

	if ec.isNetworkError(err) {
		return &ConnectionError{
			Cause:        err,
			Retryable:    retryable || errorType == ErrorTypeUnknown,
			BackoffDelay: ec.calculateBackoffDelay(errorType, 1),
			ErrorType:    errorType,
			Endpoint:     endpoint,
			Attempt:      1,
		}
	}

	return &ManticoreError{
		Message:   ec.sanitizeErrorMessage(err.Error()),
		Endpoint:  endpoint,
		Method:    method,
		Retryable: retryable,
		ErrorType: errorType,
		Cause:     err,
	}
}

// classifyErrorType determines the error type and retryability from the message
func (ec *ErrorClassifier) classifyErrorType(err error) (ErrorType, bool) {
	if err == nil {
		return ErrorTypeUnknown, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout, true
	}

	errStr := strings.ToLower(err.Error())

	networkErrors := []struct {
		pattern   string
		errorType ErrorType
	}{
		{"connection refused", ErrorTypeConnectionRefused},
		{"connection reset", ErrorTypeConnectionReset},
		{"broken pipe", ErrorTypeConnectionReset},
		{"use of closed network connection", ErrorTypeConnectionReset},
		{"server closed idle connection", ErrorTypeConnectionReset},
		{"no such host", ErrorTypeDNS},
		{"dial tcp", ErrorTypeNetwork},
		{"no route to host", ErrorTypeNetwork},
		{"host is down", ErrorTypeNetwork},
		{"network is unreachable", ErrorTypeNetwork},
	}
	for _, ne := range networkErrors {
		if strings.Contains(errStr, ne.pattern) {
			return ne.errorType, true
		}
	}

	if containsAny(errStr, []string{"timeout", "deadline exceeded", "timed out", "temporary failure"}) {
		return ErrorTypeTimeout, true
	}

	if containsAny(errStr, []string{"unauthorized", "authentication", "access denied"}) {
		return ErrorTypeAuthentication, false
	}

	if containsAny(errStr, []string{"invalid json", "malformed", "bad request", "validation failed", "syntax error"}) {
		return ErrorTypeValidation, false
	}

	return ErrorTypeUnknown, false
}

// isNetworkError checks if an error is network-related
func (ec *ErrorClassifier) isNetworkError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &addrErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// isHTTPStatusRetryable determines if an HTTP status code is retryable
func isHTTPStatusRetryable(statusCode int) bool {
	switch {
	case statusCode >= 500:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// newHTTPError builds a ManticoreError from a non-2xx response
func newHTTPError(resp *http.Response, method, endpoint string, body []byte) *ManticoreError {
	errorType := ErrorTypeHTTPClient
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		errorType = ErrorTypeRateLimit
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		errorType = ErrorTypeAuthentication
	case resp.StatusCode >= 500:
		errorType = ErrorTypeHTTPServer
	}

	var retryAfter time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return &ManticoreError{
		StatusCode: resp.StatusCode,
		Message:    truncateString(errorReason(body), 500),
		Endpoint:   endpoint,
		Method:     method,
		RetryAfter: retryAfter,
		Retryable:  isHTTPStatusRetryable(resp.StatusCode),
		ErrorType:  errorType,
		RawBody:    string(body),
	}
}

// errorReason pulls the message out of a Manticore error body. The error
// field is either a string or an object with type and reason.
func errorReason(body []byte) string {
	trimmed := strings.TrimSpace(string(body))

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil || len(envelope.Error) == 0 {
		return trimmed
	}

	var msg string
	if err := json.Unmarshal(envelope.Error, &msg); err == nil {
		return msg
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Reason != "" {
		if detail.Type != "" {
			return detail.Type + ": " + detail.Reason
		}
		return detail.Reason
	}
	return trimmed
}

// isUnknownTable reports whether Manticore rejected a request because the table is missing
func isUnknownTable(err error) bool {
	var manticoreErr *ManticoreError
	if !errors.As(err, &manticoreErr) || manticoreErr.StatusCode >= 500 {
		return false
	}
	msg := strings.ToLower(manticoreErr.Message)
	return containsAny(msg, []string{"unknown local table", "unknown table", "no such table"})
}

// calculateBackoffDelay calculates backoff delay based on error type and attempt
func (ec *ErrorClassifier) calculateBackoffDelay(errorType ErrorType, attempt int) time.Duration {
	baseDelay := 500 * time.Millisecond

	multiplier := 1.0
	switch errorType {
	case ErrorTypeConnectionRefused:
		multiplier = 4.0
	case ErrorTypeConnectionReset, ErrorTypeNetwork:
		multiplier = 3.0
	case ErrorTypeTimeout:
		multiplier = 2.0
	case ErrorTypeDNS:
		multiplier = 2.5
	case ErrorTypeRateLimit:
		multiplier = 5.0
	}

	delay := time.Duration(float64(baseDelay) * multiplier * float64(int(1)<<uint(attempt)))
	if maxDelay := 30 * time.Second; delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// sanitizeErrorMessage strips credentials from URLs and caps the message length
func (ec *ErrorClassifier) sanitizeErrorMessage(message string) string {
	sanitized := message

	if idx := strings.Index(sanitized, "://"); idx >= 0 {
		rest := sanitized[idx+3:]
		end := strings.IndexAny(rest, " /\"'")
		if end < 0 {
			end = len(rest)
		}
		if at := strings.LastIndex(rest[:end], "@"); at >= 0 {
			sanitized = sanitized[:idx+3] + "[credentials]@" + rest[at+1:]
		}
	}

	return truncateString(sanitized, 500)
}

// IsRetryableError reports whether err is worth another attempt
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var manticoreErr *ManticoreError
	if errors.As(err, &manticoreErr) {
		return manticoreErr.IsRetryable()
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}

	_, retryable := NewErrorClassifier().classifyErrorType(err)
	return retryable
}

// GetErrorBackoffDelay extracts the server or classifier suggested delay from err
func GetErrorBackoffDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	var manticoreErr *ManticoreError
	if errors.As(err, &manticoreErr) && manticoreErr.RetryAfter > 0 {
		return manticoreErr.RetryAfter
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.BackoffDelay
	}

	return 500 * time.Millisecond
}

// containsAny checks if s contains any of the given substrings
func containsAny(s string, substrings []string) bool {
	for _, substring := range substrings {
		if substring != "" && strings.Contains(s, substring) {
			return true
		}
	}
	return false
}

// truncateString truncates s to maxLen bytes
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

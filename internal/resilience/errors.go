package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// RetryableError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type RetryableError struct {
	Err        error
	StatusCode int
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps an error as retryable with an optional HTTP status code.
func NewRetryableError(err error, statusCode int) *RetryableError {
	return &RetryableError{Err: err, StatusCode: statusCode}
}

// Markers surfaced verbatim by upstream gateways and proxies; these are
// matched case-sensitively.
var exactRetryableMarkers = []string{
	"SSLError",
	"ConnectionError",
	"TimeoutError",
	"Max retries exceeded",
	"EOF occurred",
	"Connection reset",
	"Connection refused",
	"BadStatusLine",
	"RemoteDisconnected",
	"BrokenPipeError",
	"ChunkedEncodingError",
	"IncompleteRead",
}

// Lowercase markers for throttling and transient server-side failures.
var retryableMarkers = []string{
	"rate limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"network",
	"timeout",
	"connection",
	"reset",
	"broken pipe",
}

// IsRetryable returns true if the error (or any error in its chain) is a
// RetryableError, a network-level timeout, or if its message matches a known
// throttling or connection-failure marker.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check for explicit RetryableError in chain.
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}

	// Check for network-level errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / aborted.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := err.Error()
	for _, m := range exactRetryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}

	lower := strings.ToLower(msg)
	for _, m := range retryableMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}

	return false
}

// IsRetryableHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

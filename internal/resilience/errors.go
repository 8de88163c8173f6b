package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a feed failure that is safe to retry, such as a 503
// from the upstream or a dropped connection.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// feedNetworkErrnos are the dial-level failures a flaky feed host produces.
var feedNetworkErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
}

// feedNetworkPatterns match wrapped net/http client errors that carry no
// typed cause. The list covers what polling a JSON feed over HTTPS can
// actually surface: DNS flaps, TLS stalls, and dropped keep-alive
// connections.
var feedNetworkPatterns = []string{
	"connection reset by peer",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

// IsTransient reports whether the error (or any error in its chain) is a
// TransientError, or looks like a recoverable network failure from the feed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range feedNetworkErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range feedNetworkPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether a feed response status is worth
// retrying: throttling and server-side failures, never client errors.
func IsTransientHTTPStatus(statusCode int) bool {
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

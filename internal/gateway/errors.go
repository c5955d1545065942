package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidJSON is returned when a 2xx response body is not valid JSON.
var ErrInvalidJSON = errors.New("response is not valid JSON")

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Message    string // server-provided message, or "HTTP Error <status>"
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Message == genericMessage(e.StatusCode) {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func genericMessage(status int) string {
	return fmt.Sprintf("HTTP Error %d", status)
}

// TransportError is a failure to obtain any HTTP response at all
// (DNS, connection refused, reset, timeout, unreadable body).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

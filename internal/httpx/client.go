// Package httpx builds the HTTP client shared by the outbound integrations.
package httpx

import (
	"net/http"
	"time"
)

const DefaultTimeout = 90 * time.Second

// Timeout converts a configured number of seconds, falling back to
// DefaultTimeout when it is not positive.
func Timeout(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return DefaultTimeout
}

// NewClient returns a client for Slack and model API calls.
func NewClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: Timeout(timeoutSeconds)}
}

package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

// ExternalTimeout converts a configured number of seconds into the timeout
// used for calls to third-party services; non-positive values mean the default.
func ExternalTimeout(timeoutSeconds int) time.Duration {
	if timeoutSeconds > 0 {
		return time.Duration(timeoutSeconds) * time.Second
	}
	return defaultExternalHTTPTimeout
}

// NewExternalClient returns the client shared by the GitHub, feed, LLM and
// webhook integrations.
func NewExternalClient(timeoutSeconds int) *http.Client {
	return &http.Client{
		Timeout: ExternalTimeout(timeoutSeconds),
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

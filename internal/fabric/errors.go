// Package fabric executes outbound HTTP requests under shared rate-limit,
// retry, and circuit-breaker policies, one state set per upstream.
package fabric

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBreakerOpen is returned without issuing a request while an upstream
// is quarantined.
var ErrBreakerOpen = errors.New("circuit breaker open")

// UpstreamError is a non-2xx response or transport failure from an upstream.
type UpstreamError struct {
	Upstream  string
	Status    int // 0 on transport failure
	Permanent bool
	Body      string
	Headers   http.Header // last response's headers, nil on transport failure
	Err       error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Upstream, e.Err)
	}
	return fmt.Sprintf("%s returned status %d", e.Upstream, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure may be retried: 429, any 5xx,
// or a transport error.
func (e *UpstreamError) IsRetryable() bool {
	return !e.Permanent
}

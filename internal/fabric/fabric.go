package fabric

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	initialBackoff = time.Second
)

// EventSink receives one journal entry per logical upstream call. The
// ingest log binds itself into the context of scheduled jobs; requests
// outside a run go unjournaled.
type EventSink interface {
	AppendEvent(ctx context.Context, source, endpoint string, httpStatus *int, responseMs *int64, errMsg string, headers http.Header)
}

// UpstreamSettings configures one upstream's bucket and breaker.
type UpstreamSettings struct {
	QPS     float64
	Breaker BreakerSettings
}

// Registry holds the process-wide per-upstream state: token bucket,
// circuit breaker, and rolling metrics. It is injected into the clients
// rather than accessed as a singleton so tests can isolate state.
type Registry struct {
	mu        sync.Mutex
	upstreams map[string]*upstreamState
	settings  map[string]UpstreamSettings
	metrics   *Metrics
	client    *http.Client
	sink      EventSink
	logger    *zap.SugaredLogger
	sleep     func(ctx context.Context, d time.Duration) error
}

type upstreamState struct {
	bucket  *tokenBucket
	breaker *breaker
}

// NewRegistry creates a registry with per-upstream settings. Upstreams not
// present in settings get QPS 1 and default breaker parameters.
func NewRegistry(settings map[string]UpstreamSettings, sink EventSink, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		upstreams: make(map[string]*upstreamState),
		settings:  settings,
		metrics:   NewMetrics(),
		client:    &http.Client{},
		sink:      sink,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Metrics exposes the rolling counters for the metrics endpoint.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

func (r *Registry) state(upstream string) *upstreamState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upstreams[upstream]
	if s == nil {
		cfg, ok := r.settings[upstream]
		if !ok {
			cfg = UpstreamSettings{QPS: 1, Breaker: DefaultBreakerSettings()}
		}
		s = &upstreamState{
			bucket:  newTokenBucket(cfg.QPS),
			breaker: newBreaker(cfg.Breaker),
		}
		r.upstreams[upstream] = s
	}
	return s
}

// Response is the result of a successful upstream call.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Do executes one logical call to a named upstream: breaker check, token
// acquisition, then up to three transport attempts with backoff. Exactly
// one metrics record and at most one journal event are produced per call.
func (r *Registry) Do(ctx context.Context, upstream, method, rawURL string, headers map[string]string, body []byte, timeout time.Duration) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("fabric: url must be absolute: %q", rawURL)
	}

	s := r.state(upstream)

	if !s.breaker.Allow() {
		r.metrics.RecordFailure(upstream)
		r.appendEvent(ctx, upstream, rawURL, nil, nil, "circuit breaker open", nil)
		return nil, fmt.Errorf("%s: %w", upstream, ErrBreakerOpen)
	}

	start := time.Now()
	resp, callErr := r.attempt(ctx, s, upstream, method, rawURL, headers, body, timeout)
	elapsed := time.Since(start).Milliseconds()

	if callErr != nil {
		s.breaker.RecordFailure()
		r.metrics.RecordFailure(upstream)
		var status *int
		var respHeaders http.Header
		if ue, ok := callErr.(*UpstreamError); ok {
			if ue.Status != 0 {
				st := ue.Status
				status = &st
			}
			respHeaders = ue.Headers
		}
		r.appendEvent(ctx, upstream, rawURL, status, &elapsed, callErr.Error(), respHeaders)
		return nil, callErr
	}

	s.breaker.RecordSuccess()
	r.metrics.RecordSuccess(upstream)
	r.appendEvent(ctx, upstream, rawURL, &resp.Status, &elapsed, "", resp.Headers)
	return resp, nil
}

func (r *Registry) attempt(ctx context.Context, s *upstreamState, upstream, method, rawURL string, headers map[string]string, body []byte, timeout time.Duration) (*Response, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.bucket.Acquire(ctx); err != nil {
			return nil, &UpstreamError{Upstream: upstream, Err: err}
		}

		resp, err := r.transport(ctx, method, rawURL, headers, body, timeout)
		if err != nil {
			lastErr = &UpstreamError{Upstream: upstream, Err: err}
			r.logger.Debugw("upstream transport error", "upstream", upstream, "attempt", attempt, "error", err)
			if attempt < maxAttempts {
				if serr := r.sleep(ctx, backoff); serr != nil {
					return nil, &UpstreamError{Upstream: upstream, Err: serr}
				}
				backoff *= 2
			}
			continue
		}

		if resp.Status >= 200 && resp.Status < 300 {
			return resp, nil
		}

		retryable := resp.Status == http.StatusTooManyRequests || resp.Status >= 500
		lastErr = &UpstreamError{
			Upstream:  upstream,
			Status:    resp.Status,
			Permanent: !retryable,
			Body:      truncate(string(resp.Body), 512),
			Headers:   resp.Headers,
		}
		if !retryable {
			return nil, lastErr
		}

		if attempt < maxAttempts {
			wait := backoff
			if ra := resp.Headers.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil && secs >= 0 {
					wait = time.Duration(secs) * time.Second
				}
			}
			r.logger.Debugw("retrying upstream call", "upstream", upstream, "status", resp.Status, "attempt", attempt, "wait", wait)
			if serr := r.sleep(ctx, wait); serr != nil {
				return nil, &UpstreamError{Upstream: upstream, Err: serr}
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

func (r *Registry) transport(ctx context.Context, method, rawURL string, headers map[string]string, body []byte, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: b}, nil
}

func (r *Registry) appendEvent(ctx context.Context, source, endpoint string, status *int, responseMs *int64, errMsg string, headers http.Header) {
	if r.sink == nil {
		return
	}
	r.sink.AppendEvent(ctx, source, endpoint, status, responseMs, errMsg, headers)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

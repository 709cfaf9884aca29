package fabric

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testRegistry(settings map[string]UpstreamSettings) *Registry {
	r := NewRegistry(settings, nil, zap.NewNop().Sugar())
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func TestDoRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := testRegistry(nil)
	resp, err := reg.Do(context.Background(), "TEST", "GET", srv.URL, nil, nil, time.Second)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("upstream called %d times, want 3", got)
	}

	snaps := reg.Metrics().Snapshots()
	if len(snaps) != 1 || snaps[0].CallsLastHour != 1 || snaps[0].FailuresLastHour != 0 {
		t.Fatalf("metrics recorded %+v, want one successful logical call", snaps)
	}
}

func TestDoHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	reg := NewRegistry(nil, nil, zap.NewNop().Sugar())
	var waits []time.Duration
	reg.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if _, err := reg.Do(context.Background(), "TEST", "GET", srv.URL, nil, nil, time.Second); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(waits) == 0 || waits[0] != 3*time.Second {
		t.Fatalf("waits = %v, want first wait of 3s from Retry-After", waits)
	}
}

func TestDoDoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := testRegistry(nil)
	_, err := reg.Do(context.Background(), "TEST", "GET", srv.URL, nil, nil, time.Second)

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if !ue.Permanent || ue.Status != http.StatusNotFound {
		t.Fatalf("error = %+v, want permanent 404", ue)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("upstream called %d times, want 1", got)
	}
}

func TestDoFailsFastWhenBreakerOpen(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	settings := map[string]UpstreamSettings{
		"TEST": {QPS: 100, Breaker: BreakerSettings{Threshold: 1, Window: time.Minute, CoolDown: time.Hour}},
	}
	reg := testRegistry(settings)

	if _, err := reg.Do(context.Background(), "TEST", "GET", srv.URL, nil, nil, time.Second); err == nil {
		t.Fatal("expected first call to fail")
	}
	before := calls.Load()

	_, err := reg.Do(context.Background(), "TEST", "GET", srv.URL, nil, nil, time.Second)
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("error = %v, want ErrBreakerOpen", err)
	}
	if calls.Load() != before {
		t.Fatal("breaker-open call reached the upstream")
	}
}

type eventRecorder struct {
	headers []http.Header
	errs    []string
}

func (e *eventRecorder) AppendEvent(ctx context.Context, source, endpoint string, httpStatus *int, responseMs *int64, errMsg string, headers http.Header) {
	e.headers = append(e.headers, headers)
	e.errs = append(e.errs, errMsg)
}

func TestDoJournalsResponseHeadersOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := &eventRecorder{}
	reg := NewRegistry(nil, sink, zap.NewNop().Sugar())
	reg.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if _, err := reg.Do(context.Background(), "TEST", "GET", srv.URL, nil, nil, time.Second); err == nil {
		t.Fatal("expected exhausted retries to fail")
	}
	if len(sink.headers) != 1 {
		t.Fatalf("journaled %d events, want 1", len(sink.headers))
	}
	if got := sink.headers[0].Get("Retry-After"); got != "7" {
		t.Fatalf("journaled Retry-After = %q, want 7", got)
	}
	if sink.errs[0] == "" {
		t.Fatal("failure event carried no error message")
	}
}

func TestDoRejectsRelativeURLs(t *testing.T) {
	reg := testRegistry(nil)
	if _, err := reg.Do(context.Background(), "TEST", "GET", "/points/1,2", nil, nil, time.Second); err == nil {
		t.Fatal("expected relative URL to be rejected")
	}
}

func TestBreakerOpensAtThresholdAndCoolsDown(t *testing.T) {
	clock := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(BreakerSettings{Threshold: 5, Window: time.Minute, CoolDown: 5 * time.Minute})
	b.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if !b.Allow() {
		t.Fatal("breaker opened below threshold")
	}
	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker stayed closed at threshold")
	}

	clock = clock.Add(5*time.Minute + time.Second)
	if !b.Allow() {
		t.Fatal("breaker did not admit a probe after cool-down")
	}
}

func TestBreakerWindowExpiresOldFailures(t *testing.T) {
	clock := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(BreakerSettings{Threshold: 3, Window: time.Minute, CoolDown: time.Hour})
	b.now = func() time.Time { return clock }

	b.RecordFailure()
	b.RecordFailure()
	clock = clock.Add(2 * time.Minute)
	b.RecordFailure()
	if !b.Allow() {
		t.Fatal("stale failures outside the window opened the breaker")
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	b := newBreaker(BreakerSettings{Threshold: 2, Window: time.Minute, CoolDown: time.Hour})
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if !b.Allow() {
		t.Fatal("success did not reset the failure count")
	}
}

func TestTokenBucketPacing(t *testing.T) {
	clock := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	b := newTokenBucket(1)
	b.now = func() time.Time { return clock }
	b.sleep = func(ctx context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return nil
	}
	b.tokens = 0
	b.last = clock

	start := clock
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	elapsed := clock.Sub(start)
	if elapsed < 900*time.Millisecond || elapsed > 1100*time.Millisecond {
		t.Fatalf("token arrived after %v, want about 1s at 1 qps", elapsed)
	}
}

func TestTokenBucketCapacity(t *testing.T) {
	b := newTokenBucket(2)
	if b.capacity != 20 {
		t.Fatalf("capacity = %v, want qps*10", b.capacity)
	}
	if newTokenBucket(0.05).capacity != 1 {
		t.Fatal("capacity floor of 1 not applied")
	}
}

func TestTokenBucketAcquireCancel(t *testing.T) {
	b := newTokenBucket(1)
	b.tokens = 0
	b.last = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire = %v, want context.Canceled", err)
	}
}

func TestMetricsRollingWindow(t *testing.T) {
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := NewMetrics()
	m.now = func() time.Time { return clock }

	m.RecordSuccess("NWS")
	m.RecordFailure("NWS")
	clock = clock.Add(2 * time.Hour)
	m.RecordSuccess("NWS")

	snaps := m.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	s := snaps[0]
	if s.CallsLastHour != 1 || s.FailuresLastHour != 0 {
		t.Fatalf("snapshot = %+v, want old samples pruned", s)
	}
	if s.Status != "ok" {
		t.Fatalf("status = %q, want ok", s.Status)
	}
}

func TestMetricsDegradedStatus(t *testing.T) {
	m := NewMetrics()
	m.RecordFailure("NOAA")
	m.RecordSuccess("NOAA")

	snaps := m.Snapshots()
	if snaps[0].Status != "degraded" {
		t.Fatalf("status = %q, want degraded at 50%% failures", snaps[0].Status)
	}
	if snaps[0].FailurePct != 50 {
		t.Fatalf("failure pct = %v, want 50", snaps[0].FailurePct)
	}
}

package restserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/fabric"
	"go.uber.org/zap"
)

func testServer() *Server {
	return &Server{
		cache:   newResponseCache(),
		metrics: fabric.NewMetrics(),
		logger:  zap.NewNop().Sugar(),
	}
}

func TestResponseCacheExpiry(t *testing.T) {
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c := newResponseCache()
	c.now = func() time.Time { return clock }

	c.put("k", []byte(`{"a":1}`), "application/json", 15*time.Second)
	if _, ok := c.get("k"); !ok {
		t.Fatal("fresh entry not served")
	}

	clock = clock.Add(16 * time.Second)
	if _, ok := c.get("k"); ok {
		t.Fatal("expired entry served")
	}
}

func TestEtagDeterministic(t *testing.T) {
	a := etagFor([]byte(`{"a":1}`))
	b := etagFor([]byte(`{"a":1}`))
	if a != b {
		t.Fatalf("equal bodies produced etags %q and %q", a, b)
	}
	if a == etagFor([]byte(`{"a":2}`)) {
		t.Fatal("different bodies produced equal etags")
	}
	if a[0] != '"' || a[len(a)-1] != '"' {
		t.Fatalf("etag %q is not quoted", a)
	}
}

func TestCanonicalKeys(t *testing.T) {
	if got := canonCoord(45.51519999); got != "45.5152" {
		t.Errorf("canonCoord = %q", got)
	}
	if got := canonBBox([4]float64{45.0004, -123.0004, 46, -122}); got != "45.000,-123.000,46.000,-122.000" {
		t.Errorf("canonBBox = %q", got)
	}
}

// Two calls within the TTL share an ETag and a body; a conditional call
// with that ETag gets 304 and no body.
func TestServeCachedConditionalFlow(t *testing.T) {
	s := testServer()
	builds := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		s.serveCached(w, r, "metrics/summary", policyMetrics, func() (interface{}, error) {
			builds++
			return map[string]int{"rows": 7}, nil
		})
	}

	first := httptest.NewRecorder()
	handler(first, httptest.NewRequest("GET", "/api/metrics/summary", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on first response")
	}

	second := httptest.NewRecorder()
	handler(second, httptest.NewRequest("GET", "/api/metrics/summary", nil))
	if second.Header().Get("ETag") != etag {
		t.Fatal("second response has a different ETag")
	}
	if builds != 1 {
		t.Fatalf("payload built %d times, want 1", builds)
	}

	condReq := httptest.NewRequest("GET", "/api/metrics/summary", nil)
	condReq.Header.Set("If-None-Match", etag)
	third := httptest.NewRecorder()
	handler(third, condReq)
	if third.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", third.Code)
	}
	if third.Body.Len() != 0 {
		t.Fatal("304 response carried a body")
	}

	want := "public, max-age=15, stale-while-revalidate=30"
	for i, rec := range []*httptest.ResponseRecorder{first, second, third} {
		if got := rec.Header().Get("Cache-Control"); got != want {
			t.Errorf("response %d Cache-Control = %q, want %q", i+1, got, want)
		}
	}
}

func TestServeCachedSeparatesFormats(t *testing.T) {
	s := testServer()
	handler := func(w http.ResponseWriter, r *http.Request) {
		s.serveCached(w, r, "k", policyMetrics, func() (interface{}, error) {
			return map[string]int{"n": 1}, nil
		})
	}

	jsonRec := httptest.NewRecorder()
	handler(jsonRec, httptest.NewRequest("GET", "/x", nil))
	if ct := jsonRec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("json content type = %q", ct)
	}

	msgpackRec := httptest.NewRecorder()
	handler(msgpackRec, httptest.NewRequest("GET", "/x?format=msgpack", nil))
	if ct := msgpackRec.Header().Get("Content-Type"); ct != "application/msgpack" {
		t.Fatalf("msgpack content type = %q", ct)
	}
	if jsonRec.Header().Get("ETag") == msgpackRec.Header().Get("ETag") {
		t.Fatal("different encodings share an ETag")
	}
}

func TestHandleMetricsExternal(t *testing.T) {
	s := testServer()
	s.metrics.RecordSuccess("NWS")

	rec := httptest.NewRecorder()
	s.handleMetricsExternal(rec, httptest.NewRequest("GET", "/api/metrics/external", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var snaps []fabric.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Service != "NWS" || snaps[0].CallsLastHour != 1 {
		t.Fatalf("snapshots = %+v", snaps)
	}
}

package noaa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func httpDoer() Doer {
	return func(ctx context.Context, upstream, method, url string, headers map[string]string, body []byte, timeout time.Duration) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}

func TestStationsNear(t *testing.T) {
	var gotToken string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("token")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, `{"metadata":{"resultset":{"offset":1,"count":1,"limit":25}},
			"results":[{"id":"GHCND:USW00024229","name":"PORTLAND INTL AP","latitude":45.5908,
			"longitude":-122.6003,"elevation":6.1,"datacoverage":1}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", httpDoer())
	results, err := c.StationsNear(context.Background(), 45.5, -122.6, 50, 25)
	if err != nil {
		t.Fatalf("StationsNear returned error: %v", err)
	}

	if gotToken != "secret-token" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotQuery["datasetid"] != "GHCND" {
		t.Errorf("datasetid = %q", gotQuery["datasetid"])
	}
	if gotQuery["sortfield"] != "datacoverage" {
		t.Errorf("sortfield = %q", gotQuery["sortfield"])
	}
	if gotQuery["extent"] == "" {
		t.Error("extent missing from query")
	}
	if len(results) != 1 || results[0].ID != "GHCND:USW00024229" {
		t.Errorf("results = %+v", results)
	}
}

func TestDailyGHCNDQuery(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, `{"metadata":{"resultset":{"offset":1,"count":2,"limit":250}},
			"results":[
			 {"date":"2026-08-01T00:00:00","datatype":"TMAX","station":"GHCND:USW00024229","value":31.1},
			 {"date":"2026-08-01T00:00:00","datatype":"PRCP","station":"GHCND:USW00024229","value":0}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", httpDoer())
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	rows, rs, err := c.DailyGHCND(context.Background(), "GHCND:USW00024229", start, end, 250, 0)
	if err != nil {
		t.Fatalf("DailyGHCND returned error: %v", err)
	}

	if gotQuery["units"] != "metric" {
		t.Errorf("units = %q, want metric", gotQuery["units"])
	}
	if gotQuery["datatypeid"] != "TMAX,TMIN,PRCP" {
		t.Errorf("datatypeid = %q", gotQuery["datatypeid"])
	}
	if gotQuery["startdate"] != "2026-08-01" || gotQuery["enddate"] != "2026-08-23" {
		t.Errorf("date range = %q..%q", gotQuery["startdate"], gotQuery["enddate"])
	}
	if rs.Count != 2 || len(rows) != 2 {
		t.Errorf("rows = %d, resultset = %+v", len(rows), rs)
	}
}

func TestDailyGHCNDAllPaginates(t *testing.T) {
	const total = 600
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)

		page := total - offset
		if page > DailyPageLimit {
			page = DailyPageLimit
		}
		fmt.Fprintf(w, `{"metadata":{"resultset":{"offset":%d,"count":%d,"limit":%d}},"results":[`,
			offset, total, DailyPageLimit)
		for i := 0; i < page; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"date":"2026-08-01T00:00:00","datatype":"TMAX","station":"GHCND:X","value":%d}`, i)
		}
		fmt.Fprint(w, `]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", httpDoer())
	rows, err := c.DailyGHCNDAll(context.Background(), "GHCND:X",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailyGHCNDAll returned error: %v", err)
	}

	if len(rows) != total {
		t.Fatalf("rows = %d, want %d", len(rows), total)
	}
	wantOffsets := []int{0, 250, 500}
	if len(offsets) != len(wantOffsets) {
		t.Fatalf("offsets = %v, want %v", offsets, wantOffsets)
	}
	for i, o := range wantOffsets {
		if offsets[i] != o {
			t.Fatalf("offsets = %v, want %v", offsets, wantOffsets)
		}
	}
}

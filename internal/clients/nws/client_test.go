package nws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// httpDoer adapts a plain http.Client to the fabric Doer shape for tests.
func httpDoer(t *testing.T) Doer {
	t.Helper()
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

func TestPoints(t *testing.T) {
	var gotPath, gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{"properties":{"gridId":"PQR","gridX":112,"gridY":103,
			"forecastHourly":"https://api.weather.gov/gridpoints/PQR/112,103/forecast/hourly",
			"forecastGridData":"https://api.weather.gov/gridpoints/PQR/112,103"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "weatherdepot test", httpDoer(t))
	resp, err := c.Points(context.Background(), 45.5152, -122.6784)
	if err != nil {
		t.Fatalf("Points returned error: %v", err)
	}

	if gotPath != "/points/45.5152,-122.6784" {
		t.Errorf("path = %q, want 4-decimal coordinates", gotPath)
	}
	if gotUA != "weatherdepot test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "application/geo+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if resp.Properties.GridID != "PQR" || resp.Properties.GridX != 112 || resp.Properties.GridY != 103 {
		t.Errorf("decoded grid = %+v", resp.Properties)
	}
}

func TestPointsRejectsMissingGridID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test", httpDoer(t))
	if _, err := c.Points(context.Background(), 45, -122); err == nil {
		t.Fatal("expected error for response without gridId")
	}
}

func TestForecastHourly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"periods":[
			{"number":1,"startTime":"2026-08-24T10:00:00Z","endTime":"2026-08-24T11:00:00Z",
			 "temperature":72,"temperatureUnit":"F","windSpeed":"10 mph","windDirection":"NE",
			 "probabilityOfPrecipitation":{"unitCode":"wmoUnit:percent","value":30},
			 "shortForecast":"Sunny"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test", httpDoer(t))
	resp, raw, err := c.ForecastHourly(context.Background(), srv.URL+"/gridpoints/PQR/112,103/forecast/hourly")
	if err != nil {
		t.Fatalf("ForecastHourly returned error: %v", err)
	}
	if len(raw) == 0 {
		t.Error("raw body not returned")
	}
	periods := resp.Properties.Periods
	if len(periods) != 1 || periods[0].Temperature != 72 || periods[0].WindSpeed != "10 mph" {
		t.Errorf("decoded periods = %+v", periods)
	}
	if periods[0].ProbabilityOfPrecipitation.Value == nil || *periods[0].ProbabilityOfPrecipitation.Value != 30 {
		t.Errorf("pop = %+v", periods[0].ProbabilityOfPrecipitation)
	}
}

func TestActiveAlertsForPoint(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"features":[
			{"id":"urn:oid:1","geometry":null,
			 "properties":{"id":"urn:oid:1","event":"Wind Advisory","severity":"Moderate",
			  "status":"Actual","areaDesc":"Multnomah County"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test", httpDoer(t))
	resp, err := c.ActiveAlertsForPoint(context.Background(), 45.5152, -122.6784)
	if err != nil {
		t.Fatalf("ActiveAlertsForPoint returned error: %v", err)
	}
	if gotQuery != "point=45.5152,-122.6784" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(resp.Features) != 1 || resp.Features[0].Properties.Event != "Wind Advisory" {
		t.Errorf("decoded features = %+v", resp.Features)
	}
	if string(resp.Features[0].Geometry) != "null" {
		t.Errorf("geometry = %q, want literal null", resp.Features[0].Geometry)
	}
}

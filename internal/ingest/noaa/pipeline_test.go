package noaa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	noaaclient "github.com/weatherdepot/weatherdepot/internal/clients/noaa"
	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/pkg/config"
	"go.uber.org/zap"
)

func TestSelectNearest(t *testing.T) {
	mk := func(id string, distKm float64) candidate {
		return candidate{station: database.Station{StationID: id}, distKm: distKm}
	}
	in := []candidate{mk("E", 5), mk("A", 1), mk("C", 3), mk("B", 2), mk("D", 4)}

	got := selectNearest(in, 3)
	if len(got) != 3 {
		t.Fatalf("kept %d candidates, want 3", len(got))
	}
	if got[0].station.StationID != "A" {
		t.Fatalf("first candidate = %s, want the nearest station", got[0].station.StationID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].distKm < got[i-1].distKm {
			t.Fatalf("candidates out of distance order: %v then %v", got[i-1].distKm, got[i].distKm)
		}
	}

	if got := selectNearest([]candidate{mk("A", 1), mk("B", 2)}, 5); len(got) != 2 {
		t.Fatalf("keep above the candidate count dropped stations: %d", len(got))
	}
	if got := selectNearest(nil, 3); len(got) != 0 {
		t.Fatalf("empty input produced %d candidates", len(got))
	}
}

// Every day in [start, end] must land in exactly one window, windows must
// be contiguous, and no window may exceed the chunk size.
func TestBackfillWindows(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	tests := []struct {
		name        string
		start, end  time.Time
		chunkDays   int
		wantWindows int
	}{
		{"single day", day(2026, 8, 1), day(2026, 8, 1), 365, 1},
		{"one chunk exactly", day(2020, 1, 1), day(2020, 12, 30), 365, 1},
		{"partial tail", day(2026, 1, 1), day(2026, 9, 7), 100, 3},
		{"default chunk", day(2020, 1, 1), day(2022, 12, 31), 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := backfillWindows(tt.start, tt.end, tt.chunkDays)
			if len(windows) != tt.wantWindows {
				t.Fatalf("got %d windows, want %d: %v", len(windows), tt.wantWindows, windows)
			}

			chunk := tt.chunkDays
			if chunk <= 0 {
				chunk = 365
			}
			if !windows[0].start.Equal(tt.start) {
				t.Fatalf("first window starts %v, want %v", windows[0].start, tt.start)
			}
			if !windows[len(windows)-1].end.Equal(tt.end) {
				t.Fatalf("last window ends %v, want %v", windows[len(windows)-1].end, tt.end)
			}
			for i, w := range windows {
				if w.end.Before(w.start) {
					t.Fatalf("window %d inverted: %v", i, w)
				}
				if days := int(w.end.Sub(w.start).Hours()/24) + 1; days > chunk {
					t.Fatalf("window %d spans %d days, chunk is %d", i, days, chunk)
				}
				if i > 0 {
					if want := windows[i-1].end.AddDate(0, 0, 1); !w.start.Equal(want) {
						t.Fatalf("window %d starts %v, want the day after %v", i, w.start, windows[i-1].end)
					}
				}
			}
		})
	}

	if windows := backfillWindows(day(2026, 8, 2), day(2026, 8, 1), 30); len(windows) != 0 {
		t.Fatalf("inverted range produced %d windows", len(windows))
	}
}

func testDoer() noaaclient.Doer {
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

func TestCandidatesFromAPI(t *testing.T) {
	// Two stations near the grid, one far outside the search radius.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"metadata":{"resultset":{"offset":1,"count":3,"limit":25}},
			"results":[
			 {"id":"GHCND:USW00024229","name":"PORTLAND INTL AP","latitude":45.5908,"longitude":-122.6003,"elevation":6.1,"datacoverage":1},
			 {"id":"GHCND:USC00356750","name":"PORTLAND KGW TV","latitude":45.52,"longitude":-122.69,"elevation":48.8,"datacoverage":0.95},
			 {"id":"GHCND:USW00024233","name":"SEATTLE TACOMA AP","latitude":47.4444,"longitude":-122.3138,"elevation":112.8,"datacoverage":1}]}`)
	}))
	defer srv.Close()

	p := &Pipeline{
		client: noaaclient.NewClient(srv.URL, "tok", testDoer()),
		cfg:    &config.NOAAConfig{StationRadiusKm: 50, StationLimit: 25},
		logger: zap.NewNop().Sugar(),
	}
	gp := database.Gridpoint{GridID: "PQR:112,103", Lat: 45.5152, Lon: -122.6784}

	candidates, err := p.candidatesFromAPI(context.Background(), gp)
	if err != nil {
		t.Fatalf("candidatesFromAPI returned error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 inside the radius", len(candidates))
	}
	for _, c := range candidates {
		if c.distKm <= 0 || c.distKm > 50 {
			t.Errorf("candidate %s distance %v km outside (0, 50]", c.station.StationID, c.distKm)
		}
	}

	kept := selectNearest(candidates, 1)
	if kept[0].station.StationID != "GHCND:USC00356750" {
		t.Fatalf("primary = %s, want the nearest station", kept[0].station.StationID)
	}
}

package noaa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/weatherdepot/weatherdepot/pkg/config"
)

// Lines below follow the fixed-width ghcnd-stations.txt layout.
const stationsFixture = `USW00024229  45.5908 -122.6003    6.1 OR PORTLAND INTL AP                       GSN 72698
USW00024233  47.4444 -122.3139  112.8 WA SEATTLE TACOMA AP                  GSN HCN 72793
US1ORMT0001  45.4531 -122.5741 -999.9 OR PORTLAND 3.1 SSE
bad line
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghcnd-stations.txt")
	if err := os.WriteFile(path, []byte(stationsFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadStationsFile(t *testing.T) {
	stations, err := LoadStationsFile(writeFixture(t), nil)
	if err != nil {
		t.Fatalf("LoadStationsFile returned error: %v", err)
	}
	if len(stations) != 3 {
		t.Fatalf("got %d stations, want 3", len(stations))
	}

	first := stations[0]
	if first.ID != "USW00024229" {
		t.Errorf("id = %q", first.ID)
	}
	if first.Lat != 45.5908 || first.Lon != -122.6003 {
		t.Errorf("coords = %v,%v", first.Lat, first.Lon)
	}
	if first.ElevationM == nil || *first.ElevationM != 6.1 {
		t.Errorf("elevation = %v", first.ElevationM)
	}
	if first.Name != "PORTLAND INTL AP" {
		t.Errorf("name = %q", first.Name)
	}

	// -999.9 is the inventory's missing-elevation sentinel.
	if stations[2].ElevationM != nil {
		t.Errorf("missing elevation parsed as %v", *stations[2].ElevationM)
	}
}

func TestLoadStationsFileBBoxFilter(t *testing.T) {
	bbox := &config.BBox{MinLat: 45, MinLon: -123, MaxLat: 46, MaxLon: -122}
	stations, err := LoadStationsFile(writeFixture(t), bbox)
	if err != nil {
		t.Fatalf("LoadStationsFile returned error: %v", err)
	}
	if len(stations) != 2 {
		t.Fatalf("got %d stations inside bbox, want 2", len(stations))
	}
	for _, st := range stations {
		if st.Lat > 46 {
			t.Errorf("station %s outside bbox kept", st.ID)
		}
	}
}

func TestLoadStationsFileMissing(t *testing.T) {
	if _, err := LoadStationsFile(filepath.Join(t.TempDir(), "nope.txt"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

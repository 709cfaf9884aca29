package noaa

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/weatherdepot/weatherdepot/pkg/config"
)

// LocalStation is one row of the GHCND stations inventory file.
type LocalStation struct {
	ID         string
	Lat        float64
	Lon        float64
	ElevationM *float64
	Name       string
}

// LoadStationsFile parses the fixed-width ghcnd-stations.txt inventory,
// keeping only rows inside the bounding region when one is configured.
//
// Columns (1-based): ID 1-11, LAT 13-20, LON 22-30, ELEV 32-37, NAME 42-71.
func LoadStationsFile(path string, bbox *config.BBox) ([]LocalStation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stations file: %w", err)
	}
	defer f.Close()

	var stations []LocalStation
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 37 {
			continue
		}

		id := strings.TrimSpace(line[0:11])
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(line[12:20]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(line[21:30]), 64)
		if id == "" || err1 != nil || err2 != nil {
			continue
		}
		if bbox != nil && !bbox.Contains(lat, lon) {
			continue
		}

		st := LocalStation{ID: id, Lat: lat, Lon: lon}
		if elev, err := strconv.ParseFloat(strings.TrimSpace(line[31:37]), 64); err == nil && elev > -999 {
			st.ElevationM = &elev
		}
		if len(line) >= 71 {
			st.Name = strings.TrimSpace(line[41:71])
		} else if len(line) > 41 {
			st.Name = strings.TrimSpace(line[41:])
		}
		stations = append(stations, st)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stations file: %w", err)
	}
	return stations, nil
}

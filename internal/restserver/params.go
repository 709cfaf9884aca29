package restserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// parseLatLon reads and range-checks the required lat/lon parameters.
func parseLatLon(r *http.Request) (float64, float64, error) {
	lat, err := parseFloat(r, "lat")
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseFloat(r, "lon")
	if err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("lat must be in [-90, 90]")
	}
	if lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("lon must be in [-180, 180]")
	}
	return lat, lon, nil
}

func parseFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a number", name)
	}
	return v, nil
}

// clampInt reads an integer parameter clamped to [min, max]; blank or
// malformed values yield the default.
func clampInt(r *http.Request, name string, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	v := def
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v = n
		}
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// parseBBoxParam parses "minLat,minLon,maxLat,maxLon".
func parseBBoxParam(raw string) ([4]float64, error) {
	var b [4]float64
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("bbox must be minLat,minLon,maxLat,maxLon")
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("bbox coordinate %q is not a number", p)
		}
		b[i] = v
	}
	if b[0] < -90 || b[2] > 90 || b[1] < -180 || b[3] > 180 {
		return b, fmt.Errorf("bbox out of range")
	}
	if b[0] > b[2] || b[1] > b[3] {
		return b, fmt.Errorf("bbox is inverted")
	}
	return b, nil
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}

// parseDayRange parses the "Nd" window form used by the precipitation
// layer, clamped to [1, 365].
func parseDayRange(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	if !strings.HasSuffix(raw, "d") {
		return 0, fmt.Errorf("range must look like 30d")
	}
	n, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("range must look like 30d")
	}
	if n > 365 {
		n = 365
	}
	return n, nil
}

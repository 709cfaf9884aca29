package nws

import (
	"strconv"
	"strings"
)

const (
	mphToMps = 0.44704
	ktToMps  = 0.514444
)

// compassDegrees maps the 8-point compass to degrees.
var compassDegrees = map[string]float64{
	"N":  0,
	"NE": 45,
	"E":  90,
	"SE": 135,
	"S":  180,
	"SW": 225,
	"W":  270,
	"NW": 315,
}

// temperatureToCelsius converts a period temperature using its declared unit.
func temperatureToCelsius(value float64, unit string) float64 {
	if strings.EqualFold(unit, "F") {
		return (value - 32) * 5 / 9
	}
	return value
}

// windSpeedToMps parses NWS wind strings like "10 mph" or "5 to 10 mph",
// converting the first numeric token. Returns (0, false) when no numeric
// token is present.
func windSpeedToMps(s string) (float64, bool) {
	fields := strings.Fields(s)
	var value float64
	found := false
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			value = v
			found = true
			break
		}
	}
	if !found {
		return 0, false
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "mph"):
		return value * mphToMps, true
	case strings.Contains(lower, "kt"):
		return value * ktToMps, true
	default:
		// Already metric or unitless; pass through.
		return value, true
	}
}

// windDirectionDegrees resolves an 8-point compass direction. Sixteen-point
// inputs like "NNE" resolve through their dominant 8-point component.
func windDirectionDegrees(dir string) (float64, bool) {
	dir = strings.ToUpper(strings.TrimSpace(dir))
	if deg, ok := compassDegrees[dir]; ok {
		return deg, true
	}
	if len(dir) == 3 {
		if deg, ok := compassDegrees[dir[1:]]; ok {
			return deg, true
		}
	}
	return 0, false
}

// precipProbability normalises a percentage value to [0, 1].
func precipProbability(pct float64) float64 {
	p := pct / 100
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

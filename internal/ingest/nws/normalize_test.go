package nws

import (
	"math"
	"testing"
	"time"

	nwsclient "github.com/weatherdepot/weatherdepot/internal/clients/nws"
)

func TestGridIDFor(t *testing.T) {
	if got := GridIDFor("PQR", 112, 103); got != "PQR:112,103" {
		t.Fatalf("GridIDFor = %q", got)
	}
}

func TestTemperatureToCelsius(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  float64
	}{
		{72, "F", 22.2222},
		{32, "F", 0},
		{-40, "F", -40},
		{15, "C", 15},
		{72, "f", 22.2222},
	}
	for _, tt := range tests {
		got := temperatureToCelsius(tt.value, tt.unit)
		if math.Abs(got-tt.want) > 0.001 {
			t.Errorf("temperatureToCelsius(%v, %q) = %v, want %v", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestWindSpeedToMps(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10 mph", 4.4704, true},
		{"5 to 10 mph", 2.2352, true},
		{"10 kt", 5.14444, true},
		{"calm", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := windSpeedToMps(tt.in)
		if ok != tt.ok {
			t.Errorf("windSpeedToMps(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("windSpeedToMps(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWindDirectionDegrees(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"N", 0, true},
		{"NE", 45, true},
		{"SW", 225, true},
		{"nne", 45, true},
		{"variable", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := windDirectionDegrees(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("windDirectionDegrees(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPrecipProbability(t *testing.T) {
	if got := precipProbability(30); got != 0.30 {
		t.Fatalf("precipProbability(30) = %v", got)
	}
	if got := precipProbability(150); got != 1 {
		t.Fatalf("precipProbability(150) = %v, want clamped to 1", got)
	}
	if got := precipProbability(-5); got != 0 {
		t.Fatalf("precipProbability(-5) = %v, want clamped to 0", got)
	}
}

func TestNormalizePeriods(t *testing.T) {
	pop := 30.0
	resp := &nwsclient.HourlyForecastResponse{}
	resp.Properties.Periods = []nwsclient.HourlyPeriod{
		{
			StartTime:                  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
			EndTime:                    time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC),
			Temperature:                72,
			TemperatureUnit:            "F",
			WindSpeed:                  "10 mph",
			WindDirection:              "NE",
			ProbabilityOfPrecipitation: nwsclient.QuantValue{Value: &pop},
			ShortForecast:              "Sunny",
		},
	}

	rows := NormalizePeriods("PQR:112,103", resp)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.GridID != "PQR:112,103" {
		t.Errorf("grid_id = %q", row.GridID)
	}
	if row.TemperatureC == nil || math.Abs(*row.TemperatureC-22.2222) > 0.001 {
		t.Errorf("temperature_c = %v, want 22.22", row.TemperatureC)
	}
	if row.WindSpeedMps == nil || math.Abs(*row.WindSpeedMps-4.4704) > 1e-9 {
		t.Errorf("wind_speed_mps = %v, want 4.4704", row.WindSpeedMps)
	}
	if row.WindDirDeg == nil || *row.WindDirDeg != 45 {
		t.Errorf("wind_dir_deg = %v, want 45", row.WindDirDeg)
	}
	if row.PrecipProb == nil || *row.PrecipProb != 0.30 {
		t.Errorf("precip_prob = %v, want 0.30", row.PrecipProb)
	}
	if row.ShortForecast != "Sunny" {
		t.Errorf("short_forecast = %q", row.ShortForecast)
	}
}

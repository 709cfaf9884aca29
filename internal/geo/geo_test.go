package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		tolKm                  float64
	}{
		{"same point", 45.0, -122.0, 45.0, -122.0, 0, 0.001},
		{"portland to seattle", 45.5152, -122.6784, 47.6062, -122.3321, 234, 4},
		{"one degree latitude", 45.0, -122.0, 46.0, -122.0, 111.2, 0.5},
		{"equatorial degree longitude", 0, 0, 0, 1, 111.2, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantKm) > tt.tolKm {
				t.Fatalf("HaversineKm = %v, want %v +/- %v", got, tt.wantKm, tt.tolKm)
			}
		})
	}
}

func TestWeightByDistanceM(t *testing.T) {
	if w := WeightByDistanceM(2000); w != 1.0/2000 {
		t.Fatalf("weight at 2000m = %v", w)
	}
	if w := WeightByDistanceM(0.2); w != 1 {
		t.Fatal("sub-metre distances must clamp to weight 1")
	}
}

func TestWeightInverseSquareKm(t *testing.T) {
	if w := WeightInverseSquareKm(2); w != 0.25 {
		t.Fatalf("weight at 2km = %v, want 0.25", w)
	}
	if w := WeightInverseSquareKm(0.0005); w != 1e6 {
		t.Fatalf("weight under 1m = %v, want capped at 1e6", w)
	}
}

func TestWeightedMeanInverseDistance(t *testing.T) {
	// Stations at 1, 2, and 4 km with tmean 10, 20, 40 and w = 1/distM:
	// (10/1000 + 20/2000 + 40/4000) / (1/1000 + 1/2000 + 1/4000) = 120/7.
	values := []float64{10, 20, 40}
	weights := []float64{
		WeightByDistanceM(1000),
		WeightByDistanceM(2000),
		WeightByDistanceM(4000),
	}
	got, ok := WeightedMean(values, weights)
	if !ok {
		t.Fatal("WeightedMean reported no contributions")
	}
	want := 120.0 / 7.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("WeightedMean = %v, want %v", got, want)
	}
}

func TestWeightedMeanSingleStation(t *testing.T) {
	got, ok := WeightedMean([]float64{12.5}, []float64{0.001})
	if !ok || got != 12.5 {
		t.Fatalf("single contribution = (%v, %v), want (12.5, true)", got, ok)
	}
}

func TestWeightedMeanEmpty(t *testing.T) {
	if _, ok := WeightedMean(nil, nil); ok {
		t.Fatal("empty input must report no contributions")
	}
	if _, ok := WeightedMean([]float64{1}, []float64{0}); ok {
		t.Fatal("zero total weight must report no contributions")
	}
}

func TestExtentFromRadius(t *testing.T) {
	minLat, minLon, maxLat, maxLon := ExtentFromRadius(45, -122, 111)
	if math.Abs((maxLat-minLat)-2) > 0.01 {
		t.Fatalf("latitude span = %v, want about 2 degrees for 111km", maxLat-minLat)
	}
	// Longitude span widens with latitude.
	if maxLon-minLon <= maxLat-minLat {
		t.Fatal("longitude span at 45N should exceed latitude span")
	}
}

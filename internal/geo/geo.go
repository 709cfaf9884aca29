// Package geo provides the great-circle and interpolation arithmetic the
// ingest pipelines and read API share.
package geo

import (
	"math"

	"github.com/weatherdepot/weatherdepot/internal/constants"
	"gonum.org/v1/gonum/stat"
)

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return constants.EarthRadiusKm * c
}

// WeightByDistanceM is the point-summary IDW weight: w = 1/max(d, 1).
func WeightByDistanceM(distM float64) float64 {
	if distM < 1 {
		distM = 1
	}
	return 1 / distM
}

// WeightInverseSquareKm is the layer IDW weight 1/d^2 in km, capped at
// 1e6 when the distance drops under one metre.
func WeightInverseSquareKm(distKm float64) float64 {
	if distKm < 0.001 {
		return 1e6
	}
	return 1 / (distKm * distKm)
}

// WeightedMean computes the inverse-distance-weighted value. Returns
// (0, false) when no contribution carries weight.
func WeightedMean(values, weights []float64) (float64, bool) {
	if len(values) == 0 || len(values) != len(weights) {
		return 0, false
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0, false
	}
	return stat.Mean(values, weights), true
}

// ExtentFromRadius computes a lat/lon bounding extent from a radius,
// using the standard 111 km/degree approximation and cos(lat) for
// longitude. Returns minLat, minLon, maxLat, maxLon.
func ExtentFromRadius(lat, lon, radiusKm float64) (float64, float64, float64, float64) {
	latDelta := radiusKm / 111.0
	cosLat := math.Cos(lat * math.Pi / 180)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	lonDelta := radiusKm / (111.0 * cosLat)
	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

package restserver

import "encoding/json"

// geoJSONGeometry is a minimal GeoJSON geometry. Coordinates are
// [lon, lat] per the standard.
type geoJSONGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// geoJSONFeature carries either a built point geometry or raw geometry
// passed through from storage.
type geoJSONFeature struct {
	Type       string      `json:"type"`
	Geometry   interface{} `json:"geometry"`
	Properties interface{} `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

func newCollection(features []geoJSONFeature) geoJSONCollection {
	if features == nil {
		features = []geoJSONFeature{}
	}
	return geoJSONCollection{Type: "FeatureCollection", Features: features}
}

func pointFeature(lat, lon float64, props interface{}) geoJSONFeature {
	return geoJSONFeature{
		Type:       "Feature",
		Geometry:   geoJSONGeometry{Type: "Point", Coordinates: []float64{lon, lat}},
		Properties: props,
	}
}

// rawFeature wraps stored GeoJSON geometry text; nil geometry stays null.
func rawFeature(geometryJSON *string, props interface{}) geoJSONFeature {
	f := geoJSONFeature{Type: "Feature", Properties: props}
	if geometryJSON != nil && *geometryJSON != "" {
		f.Geometry = json.RawMessage(*geometryJSON)
	}
	return f
}

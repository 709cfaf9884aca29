package restserver

import (
	"net/http"
	"sort"

	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/geo"
)

// layerNeighbors is how many stations contribute to each interpolated
// grid value on the temperature layer.
const layerNeighbors = 6

// layerBBoxPadDeg expands the station search past the requested box so
// grids near the edge still find neighbours.
const layerBBoxPadDeg = 0.5

func (s *Server) handleLayerTemperature(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBoxParam(r.URL.Query().Get("bbox"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_bbox", err.Error())
		return
	}
	hourOffset := clampInt(r, "hourOffset", 0, 0, 48)

	key := "layers/temperature|bbox=" + canonBBox(bbox) + "|h=" + itoa(hourOffset)
	s.serveCached(w, r, key, policyLayer, func() (interface{}, error) {
		return s.buildTemperatureLayer(r, bbox, hourOffset)
	})
}

func (s *Server) buildTemperatureLayer(r *http.Request, bbox [4]float64, hourOffset int) (interface{}, error) {
	ctx := r.Context()

	grids, err := s.store.GridpointsInBBox(ctx, bbox[0], bbox[1], bbox[2], bbox[3])
	if err != nil {
		return nil, err
	}
	obs, err := s.store.StationsWithLatestObs(ctx,
		bbox[0]-layerBBoxPadDeg, bbox[1]-layerBBoxPadDeg,
		bbox[2]+layerBBoxPadDeg, bbox[3]+layerBBoxPadDeg)
	if err != nil {
		return nil, err
	}

	samples := make([]tempSample, 0, len(obs))
	for _, o := range obs {
		if o.TmaxC == nil || o.TminC == nil {
			continue
		}
		samples = append(samples, tempSample{
			lat:    o.Lat,
			lon:    o.Lon,
			tmeanC: (*o.TmaxC + *o.TminC) / 2,
		})
	}

	features := make([]geoJSONFeature, 0, len(grids))
	for _, gp := range grids {
		props := map[string]interface{}{
			"grid_id":     gp.GridID,
			"hour_offset": hourOffset,
		}
		if t, ok := interpolateTemp(gp, samples); ok {
			props["temperature_c"] = t
		}
		features = append(features, pointFeature(gp.Lat, gp.Lon, props))
	}
	return newCollection(features), nil
}

// tempSample is one station's latest mean temperature.
type tempSample struct {
	lat, lon, tmeanC float64
}

// interpolateTemp weights the nearest stations by inverse squared
// distance in km.
func interpolateTemp(gp database.Gridpoint, samples []tempSample) (float64, bool) {
	type weighted struct {
		distKm float64
		tmeanC float64
	}
	neighbours := make([]weighted, 0, len(samples))
	for _, sm := range samples {
		neighbours = append(neighbours, weighted{
			distKm: geo.HaversineKm(gp.Lat, gp.Lon, sm.lat, sm.lon),
			tmeanC: sm.tmeanC,
		})
	}
	sort.Slice(neighbours, func(i, j int) bool {
		return neighbours[i].distKm < neighbours[j].distKm
	})
	if len(neighbours) > layerNeighbors {
		neighbours = neighbours[:layerNeighbors]
	}

	values := make([]float64, 0, len(neighbours))
	weights := make([]float64, 0, len(neighbours))
	for _, n := range neighbours {
		values = append(values, n.tmeanC)
		weights = append(weights, geo.WeightInverseSquareKm(n.distKm))
	}
	return geo.WeightedMean(values, weights)
}

func (s *Server) handleLayerPrecipitation(w http.ResponseWriter, r *http.Request) {
	days, err := parseDayRange(r.URL.Query().Get("range"), 30)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}

	key := "layers/precipitation|days=" + itoa(days)
	s.serveCached(w, r, key, policyLayer, func() (interface{}, error) {
		rows, err := s.store.PrecipWindow(r.Context(), days)
		if err != nil {
			return nil, err
		}
		features := make([]geoJSONFeature, 0, len(rows))
		for _, row := range rows {
			features = append(features, pointFeature(row.Lat, row.Lon, row))
		}
		return newCollection(features), nil
	})
}

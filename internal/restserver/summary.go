package restserver

import (
	"errors"
	"net/http"

	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/geo"
)

// stationSummary is one nearby station in the point summary, its latest
// observation and coverage folded in.
type stationSummary struct {
	StationID string  `json:"station_id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	DistanceM float64 `json:"distance_m"`
	database.StationStats
}

type interpolated struct {
	TmeanC       *float64 `json:"tmean_c,omitempty"`
	PrcpWindowMm *float64 `json:"prcp_window_mm,omitempty"`
}

func (s *Server) handlePointSummary(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseLatLon(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_point", err.Error())
		return
	}
	days := clampInt(r, "days", 30, 1, 365)
	limit := clampInt(r, "limit", 5, 1, 10)

	key := "point/summary|" + canonCoord(lat) + "," + canonCoord(lon) +
		"|days=" + itoa(days) + "|limit=" + itoa(limit)
	s.serveCached(w, r, key, policySummary, func() (interface{}, error) {
		return s.buildPointSummary(r, lat, lon, days, limit)
	})
}

func (s *Server) buildPointSummary(r *http.Request, lat, lon float64, days, limit int) (interface{}, error) {
	ctx := r.Context()

	near, err := s.store.StationsNear(ctx, lat, lon, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]stationSummary, 0, len(near))
	var tmeanVals, tmeanWeights, prcpVals, prcpWeights []float64

	for _, st := range near {
		stats, err := s.store.StationStatsFor(ctx, st.StationID, days)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, stationSummary{
			StationID:    st.StationID,
			Name:         st.Name,
			Lat:          st.Lat,
			Lon:          st.Lon,
			DistanceM:    st.DistanceM,
			StationStats: *stats,
		})

		w := geo.WeightByDistanceM(st.DistanceM)
		if stats.LatestTmaxC != nil && stats.LatestTminC != nil {
			tmeanVals = append(tmeanVals, (*stats.LatestTmaxC+*stats.LatestTminC)/2)
			tmeanWeights = append(tmeanWeights, w)
		}
		if stats.PrcpWindowMm != nil {
			prcpVals = append(prcpVals, *stats.PrcpWindowMm)
			prcpWeights = append(prcpWeights, w)
		}
	}

	var interp interpolated
	if v, ok := geo.WeightedMean(tmeanVals, tmeanWeights); ok {
		interp.TmeanC = &v
	}
	if v, ok := geo.WeightedMean(prcpVals, prcpWeights); ok {
		interp.PrcpWindowMm = &v
	}

	payload := map[string]interface{}{
		"query":            map[string]float64{"lat": lat, "lon": lon},
		"nearest_stations": summaries,
		"interpolated":     interp,
	}

	nearest, err := s.store.NearestGridpoint(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return payload, nil
	}
	payload["nearest_gridpoint"] = nearest

	rows, err := s.store.FutureHourlyForecasts(ctx, nearest.GridID, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		payload["hourly"] = rows[0]
	}
	return payload, nil
}

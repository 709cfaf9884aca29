package restserver

import (
	"net/http"
	"strconv"

	"github.com/weatherdepot/weatherdepot/internal/database"
)

func (s *Server) handleMLRuns(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r, "limit", 50, 1, 200)
	runs, err := s.store.MLRuns(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, runs)
}

func (s *Server) handleMLPredictionsLatest(w http.ResponseWriter, r *http.Request) {
	gridID := r.URL.Query().Get("gridId")
	if gridID == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_grid_id", "gridId is required")
		return
	}
	rows, err := s.store.LatestMLPredictions(r.Context(), gridID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"grid_id":     gridID,
		"predictions": rows,
	})
}

// mlWeatherFilter builds the shared filter for the ML weather endpoints.
// For the "point" source type the latest path queries both point and
// gridpoint rows; the forecast path remaps it to gridpoint only.
func (s *Server) mlWeatherFilter(r *http.Request, forecast bool) (database.MLWeatherFilter, string, bool) {
	f := database.MLWeatherFilter{MaxHorizonHours: -1}

	raw := r.URL.Query().Get("sourceType")
	if raw == "" {
		raw = string(database.SourcePoint)
	}
	st, ok := database.ParseSourceType(raw)
	if !ok {
		return f, "sourceType must be point, gridpoint, station, or tracked", false
	}
	switch {
	case st == database.SourcePoint && forecast:
		f.SourceTypes = []database.SourceType{database.SourceGridpoint}
	case st == database.SourcePoint:
		f.SourceTypes = []database.SourceType{database.SourcePoint, database.SourceGridpoint}
	default:
		f.SourceTypes = []database.SourceType{st}
	}

	f.SourceID = r.URL.Query().Get("sourceId")
	if f.SourceID == "" {
		latRaw := r.URL.Query().Get("lat")
		lonRaw := r.URL.Query().Get("lon")
		if latRaw != "" && lonRaw != "" {
			lat, err1 := strconv.ParseFloat(latRaw, 64)
			lon, err2 := strconv.ParseFloat(lonRaw, 64)
			if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				return f, "lat/lon out of range", false
			}
			f.HasPoint = true
			f.Lat = lat
			f.Lon = lon
		}
	}
	return f, "", true
}

func (s *Server) handleMLWeatherLatest(w http.ResponseWriter, r *http.Request) {
	f, msg, ok := s.mlWeatherFilter(r, false)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "invalid_ml_query", msg)
		return
	}
	limit := clampInt(r, "limit", 100, 1, 500)

	rows, err := s.store.MLWeatherLatest(r.Context(), f, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, rows)
}

func (s *Server) handleMLWeatherForecast(w http.ResponseWriter, r *http.Request) {
	f, msg, ok := s.mlWeatherFilter(r, true)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "invalid_ml_query", msg)
		return
	}
	days := clampInt(r, "days", 7, 1, 14)
	f.MaxHorizonHours = (days - 1) * 24
	limit := clampInt(r, "limit", 500, 1, 1000)

	rows, err := s.store.MLWeatherForecast(r.Context(), f, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, rows)
}

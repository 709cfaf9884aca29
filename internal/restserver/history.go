package restserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/database"
)

func (s *Server) handleHistoryDaily(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("stationId")
	if stationID == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_station_id", "stationId is required")
		return
	}

	var start, end *time.Time
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_start", "start must be YYYY-MM-DD")
			return
		}
		start = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_end", "end must be YYYY-MM-DD")
			return
		}
		end = &t
	}

	rows, err := s.store.DailySummaries(r.Context(), stationID, start, end)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"station_id":   database.NormalizeStationID(stationID),
		"count":        len(rows),
		"observations": rows,
	})
}

func (s *Server) handleHistoryGridpoint(w http.ResponseWriter, r *http.Request) {
	gridID := r.URL.Query().Get("gridId")
	if gridID == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_grid_id", "gridId is required")
		return
	}
	days := clampInt(r, "days", 30, 1, 365)

	ctx := r.Context()
	primary, err := s.store.PrimaryStationForGrid(ctx, gridID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "no_primary_station_for_grid", "")
			return
		}
		s.writeStoreError(w, r, err)
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	rows, err := s.store.DailySummaries(ctx, primary.StationID, &start, &end)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var cached *database.CachedGridAgg
	if agg, err := s.store.CachedAggForGrid(ctx, gridID); err == nil {
		cached = agg
	} else if !errors.Is(err, database.ErrNotFound) {
		s.writeStoreError(w, r, err)
		return
	}

	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"grid_id":      gridID,
		"station_id":   primary.StationID,
		"cached":       cached,
		"observations": rows,
	})
}

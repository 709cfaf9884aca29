package restserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/database"
	ingestnws "github.com/weatherdepot/weatherdepot/internal/ingest/nws"
)

func (s *Server) handleForecastHourly(w http.ResponseWriter, r *http.Request) {
	gridID := r.URL.Query().Get("gridId")
	if gridID == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_grid_id", "gridId is required")
		return
	}

	limit := clampInt(r, "limit", 24, 1, 168)
	if r.URL.Query().Get("hours") != "" {
		limit = clampInt(r, "hours", 24, 1, 168)
	}

	start := time.Now()
	var end *time.Time
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_start", "start must be RFC 3339")
			return
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_end", "end must be RFC 3339")
			return
		}
		end = &t
	}

	rows, err := s.store.HourlyForecasts(r.Context(), gridID, &start, end, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"grid_id": gridID,
		"periods": rows,
	})
}

func (s *Server) handleForecastDaily(w http.ResponseWriter, r *http.Request) {
	gridID := r.URL.Query().Get("gridId")
	if gridID == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_grid_id", "gridId is required")
		return
	}
	days := clampInt(r, "days", 7, 1, 14)

	rows, err := s.store.DailyForecast(r.Context(), gridID, days)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"grid_id": gridID,
		"days":    rows,
	})
}

// handleForecastHourlyPoint is the live hourly flow: serve a stored grid
// when the point lands close enough to one, otherwise resolve the point
// upstream, opportunistically persisting a newly discovered gridpoint.
func (s *Server) handleForecastHourlyPoint(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseLatLon(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_point", err.Error())
		return
	}
	limit := clampInt(r, "limit", 24, 1, 168)
	listMode := r.URL.Query().Get("mode") == "list"
	refresh := boolParam(r, "refresh")

	ctx := r.Context()

	nearest, err := s.store.NearestGridpoint(ctx, lat, lon)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		s.writeStoreError(w, r, err)
		return
	}

	var gridID string
	var rows []database.HourlyForecast

	if nearest != nil && nearest.DistanceM <= s.cfg.API.NearGridM {
		gridID = nearest.GridID
		rows, err = s.servedOrFetched(ctx, gridID, nearest.ForecastHourlyURL, limit, refresh)
		if err != nil {
			s.writeUpstreamError(w, r, err)
			return
		}
	} else {
		gridID, rows, err = s.resolvePointUpstream(ctx, lat, lon, limit, refresh)
		if err != nil {
			s.writeUpstreamError(w, r, err)
			return
		}
	}

	if listMode {
		s.writeData(w, r, http.StatusOK, map[string]interface{}{
			"grid_id": gridID,
			"periods": rows,
		})
		return
	}
	var first interface{}
	if len(rows) > 0 {
		first = rows[0]
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"grid_id": gridID,
		"hourly":  first,
	})
}

// servedOrFetched tries stored future periods first, then fills from the
// grid's stored hourly URL.
func (s *Server) servedOrFetched(ctx context.Context, gridID, hourlyURL string, limit int, refresh bool) ([]database.HourlyForecast, error) {
	if !refresh {
		rows, err := s.store.FutureHourlyForecasts(ctx, gridID, limit)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	if hourlyURL == "" {
		return nil, nil
	}
	if _, err := s.nwsPipe.IngestHourlyForGrid(ctx, gridID, hourlyURL); err != nil {
		return nil, err
	}
	return s.store.FutureHourlyForecasts(ctx, gridID, limit)
}

// resolvePointUpstream asks the provider which grid covers the point,
// persisting the gridpoint when it was previously unknown.
func (s *Server) resolvePointUpstream(ctx context.Context, lat, lon float64, limit int, refresh bool) (string, []database.HourlyForecast, error) {
	resp, err := s.nws.Points(ctx, lat, lon)
	if err != nil {
		return "", nil, err
	}
	props := resp.Properties
	gridID := ingestnws.GridIDFor(props.GridID, props.GridX, props.GridY)

	known, err := s.store.GetGridpoint(ctx, gridID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", nil, err
	}

	hourlyURL := props.ForecastHourly
	if known != nil {
		if known.ForecastHourlyURL != "" {
			hourlyURL = known.ForecastHourlyURL
		}
	} else {
		now := time.Now()
		gp := &database.Gridpoint{
			GridID:              gridID,
			Office:              props.GridID,
			GridX:               props.GridX,
			GridY:               props.GridY,
			Lat:                 lat,
			Lon:                 lon,
			ForecastGridDataURL: props.ForecastGridData,
			ForecastHourlyURL:   props.ForecastHourly,
			LastRefreshedAt:     &now,
		}
		if err := s.store.UpsertGridpoint(ctx, gp); err != nil {
			// The discovery write is opportunistic; serving still works.
			s.logger.Warnw("opportunistic gridpoint upsert failed", "grid_id", gridID, "error", err)
		}
	}

	rows, err := s.servedOrFetched(ctx, gridID, hourlyURL, limit, refresh || known == nil)
	if err != nil {
		return "", nil, err
	}
	return gridID, rows, nil
}

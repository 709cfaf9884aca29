package restserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/weatherdepot/weatherdepot/internal/database"
)

func (s *Server) handleTrackedList(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.ListTrackedPoints(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, points)
}

func (s *Server) handleTrackedCreate(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseLatLon(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_point", err.Error())
		return
	}

	tp := &database.TrackedPoint{
		Name: r.URL.Query().Get("name"),
		Lat:  lat,
		Lon:  lon,
	}
	if err := s.store.CreateTrackedPoint(r.Context(), tp); err != nil {
		s.logger.Errorw("tracked point upsert failed", "lat", lat, "lon", lon, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "tracked_point_upsert_failed", "")
		return
	}
	s.writeData(w, r, http.StatusCreated, tp)
}

func (s *Server) handleTrackedDelete(w http.ResponseWriter, r *http.Request) {
	var affected int64
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_id", "id must be an integer")
			return
		}
		affected, err = s.store.DeleteTrackedPointByID(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	} else {
		lat, lon, err := parseLatLon(r)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_point", "id or lat/lon is required")
			return
		}
		affected, err = s.store.DeleteTrackedPointByLatLon(r.Context(), lat, lon)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	if affected == 0 {
		s.writeError(w, r, http.StatusNotFound, "not_found", "")
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{"deleted": affected})
}

// handleTrackedRefresh runs the gridpoint job in the background and
// answers immediately.
func (s *Server) handleTrackedRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx := context.Background()
		runCtx, run, err := s.journal.StartRun(ctx, "nws-gridpoints")
		if err != nil {
			s.logger.Errorw("could not open refresh run", "error", err)
			return
		}
		fatal := s.nwsPipe.RefreshGridpoints(runCtx, run)
		s.journal.FinishRun(runCtx, run, fatal)
		if fatal != nil {
			s.logger.Errorw("tracked point refresh failed", "run_id", run.ID, "error", fatal)
		}
	}()

	s.writeData(w, r, http.StatusAccepted, map[string]string{"status": "refresh_started"})
}

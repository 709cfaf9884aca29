package restserver

import (
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "up"
	if err := s.db.Ping(); err != nil {
		dbStatus = "down"
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"db":     dbStatus,
	})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	s.serveCached(w, r, "metrics/summary", policyMetrics, func() (interface{}, error) {
		return s.store.MetricsSummary(r.Context())
	})
}

func (s *Server) handleMetricsExternal(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, http.StatusOK, s.metrics.Snapshots())
}

func (s *Server) handleGridpoints(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBoxParam(r.URL.Query().Get("bbox"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_bbox", err.Error())
		return
	}

	key := "gridpoints|bbox=" + canonBBox(bbox)
	s.serveCached(w, r, key, policyGeo, func() (interface{}, error) {
		grids, err := s.store.GridpointsInBBox(r.Context(), bbox[0], bbox[1], bbox[2], bbox[3])
		if err != nil {
			return nil, err
		}
		features := make([]geoJSONFeature, 0, len(grids))
		for _, gp := range grids {
			features = append(features, pointFeature(gp.Lat, gp.Lon, gp))
		}
		return newCollection(features), nil
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBoxParam(r.URL.Query().Get("bbox"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_bbox", err.Error())
		return
	}

	key := "alerts|bbox=" + canonBBox(bbox)
	s.serveCached(w, r, key, policyGeo, func() (interface{}, error) {
		alerts, err := s.store.ActiveAlertsInBBox(r.Context(), bbox[0], bbox[1], bbox[2], bbox[3])
		if err != nil {
			return nil, err
		}
		features := make([]geoJSONFeature, 0, len(alerts))
		for _, a := range alerts {
			features = append(features, rawFeature(a.GeometryJSON, a.Alert))
		}
		return newCollection(features), nil
	})
}

func (s *Server) handleStationsNear(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseLatLon(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_point", err.Error())
		return
	}
	limit := clampInt(r, "limit", 5, 1, 50)

	key := "stations/near|" + canonCoord(lat) + "," + canonCoord(lon) + "|limit=" + itoa(limit)
	s.serveCached(w, r, key, policyGeo, func() (interface{}, error) {
		stations, err := s.store.StationsNear(r.Context(), lat, lon, limit)
		if err != nil {
			return nil, err
		}
		features := make([]geoJSONFeature, 0, len(stations))
		for _, st := range stations {
			features = append(features, pointFeature(st.Lat, st.Lon, st))
		}
		return newCollection(features), nil
	})
}

func (s *Server) handleStationsAll(w http.ResponseWriter, r *http.Request) {
	var bbox *[4]float64
	key := "stations/all|bbox="
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		b, err := parseBBoxParam(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_bbox", err.Error())
			return
		}
		bbox = &b
		key += canonBBox(b)
	}
	limit := clampInt(r, "limit", 1000, 1, 5000)
	withData := boolParam(r, "withData")
	key += "|limit=" + itoa(limit) + "|withData=" + boolString(withData)

	s.serveCached(w, r, key, policyGeo, func() (interface{}, error) {
		stations, err := s.store.StationsAll(r.Context(), bbox, limit, withData)
		if err != nil {
			return nil, err
		}
		features := make([]geoJSONFeature, 0, len(stations))
		for _, st := range stations {
			features = append(features, pointFeature(st.Lat, st.Lon, st))
		}
		return newCollection(features), nil
	})
}

func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r, "limit", 50, 1, 200)
	runs, err := s.store.IngestRuns(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, runs)
}

func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if runID == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing_run_id", "runId is required")
		return
	}
	limit := clampInt(r, "limit", 200, 1, 1000)
	events, err := s.store.IngestEvents(r.Context(), runID, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, events)
}

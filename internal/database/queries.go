package database

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is what the lookup queries return for a missing row, so
// callers outside this package don't need to import gorm.
var ErrNotFound = gorm.ErrRecordNotFound

// GridpointDistance pairs a gridpoint with its distance from a query point.
type GridpointDistance struct {
	Gridpoint
	DistanceM float64 `gorm:"column:distance_m" json:"distance_m"`
}

// StationDistance pairs a station with its distance from a query point.
type StationDistance struct {
	Station
	DistanceM float64 `gorm:"column:distance_m" json:"distance_m"`
}

// AlertWithGeometry carries an alert plus its geometry as GeoJSON.
type AlertWithGeometry struct {
	Alert
	GeometryJSON *string `gorm:"column:geometry_json" json:"-"`
}

// StationObs is a station's latest observation joined for the layer and
// point-summary queries.
type StationObs struct {
	StationID string     `gorm:"column:station_id" json:"station_id"`
	Name      string     `gorm:"column:name" json:"name"`
	Lat       float64    `gorm:"column:lat" json:"lat"`
	Lon       float64    `gorm:"column:lon" json:"lon"`
	Date      *time.Time `gorm:"column:date" json:"date,omitempty"`
	TmaxC     *float64   `gorm:"column:tmax_c" json:"tmax_c,omitempty"`
	TminC     *float64   `gorm:"column:tmin_c" json:"tmin_c,omitempty"`
	PrcpMm    *float64   `gorm:"column:prcp_mm" json:"prcp_mm,omitempty"`
}

// StationStats aggregates a station's observation history for point summaries.
type StationStats struct {
	LatestDate   *time.Time `gorm:"column:latest_date" json:"latest_date,omitempty"`
	LatestTmaxC  *float64   `gorm:"column:latest_tmax_c" json:"latest_tmax_c,omitempty"`
	LatestTminC  *float64   `gorm:"column:latest_tmin_c" json:"latest_tmin_c,omitempty"`
	LatestPrcpMm *float64   `gorm:"column:latest_prcp_mm" json:"latest_prcp_mm,omitempty"`
	PrcpWindowMm *float64   `gorm:"column:prcp_window_mm" json:"prcp_window_mm,omitempty"`
	ObsCount     int64      `gorm:"column:obs_count" json:"obs_count"`
	FirstDate    *time.Time `gorm:"column:first_date" json:"first_date,omitempty"`
	LastDate     *time.Time `gorm:"column:last_date" json:"last_date,omitempty"`
}

// NearestGridpoint finds the geometrically closest gridpoint to a point.
func (s *Store) NearestGridpoint(ctx context.Context, lat, lon float64) (*GridpointDistance, error) {
	var gp GridpointDistance
	query := `
		SELECT *, ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_m
		FROM geo_gridpoint
		ORDER BY geom <-> ST_SetSRID(ST_MakePoint($2, $1), 4326)
		LIMIT 1
	`
	err := s.db.WithContext(ctx).Raw(query, lat, lon).Scan(&gp).Error
	if err != nil {
		return nil, err
	}
	if gp.GridID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return &gp, nil
}

// GetGridpoint fetches a gridpoint by ID.
func (s *Store) GetGridpoint(ctx context.Context, gridID string) (*Gridpoint, error) {
	var gp Gridpoint
	err := s.db.WithContext(ctx).Where("grid_id = ?", gridID).First(&gp).Error
	if err != nil {
		return nil, err
	}
	return &gp, nil
}

// AllGridpoints returns every stored gridpoint.
func (s *Store) AllGridpoints(ctx context.Context) ([]Gridpoint, error) {
	var gps []Gridpoint
	err := s.db.WithContext(ctx).Order("grid_id").Find(&gps).Error
	return gps, err
}

// GridpointsInBBox returns gridpoints inside the bounding box.
func (s *Store) GridpointsInBBox(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]Gridpoint, error) {
	var gps []Gridpoint
	query := `
		SELECT * FROM geo_gridpoint
		WHERE geom && ST_MakeEnvelope($2, $1, $4, $3, 4326)
		ORDER BY grid_id
	`
	err := s.db.WithContext(ctx).Raw(query, minLat, minLon, maxLat, maxLon).Scan(&gps).Error
	return gps, err
}

// ActiveAlertsInBBox returns active alerts whose geometry intersects the
// box, plus alerts without geometry (area-described alerts stay visible).
func (s *Store) ActiveAlertsInBBox(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]AlertWithGeometry, error) {
	var alerts []AlertWithGeometry
	query := `
		SELECT *, ST_AsGeoJSON(geom) AS geometry_json
		FROM v_active_alerts
		WHERE geom IS NULL OR ST_Intersects(geom, ST_MakeEnvelope($2, $1, $4, $3, 4326))
		ORDER BY effective DESC NULLS LAST
	`
	err := s.db.WithContext(ctx).Raw(query, minLat, minLon, maxLat, maxLon).Scan(&alerts).Error
	return alerts, err
}

// StationsNear returns the stations closest to a point, nearest first.
func (s *Store) StationsNear(ctx context.Context, lat, lon float64, limit int) ([]StationDistance, error) {
	var stations []StationDistance
	query := `
		SELECT *, ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_m
		FROM noaa_station
		ORDER BY geom <-> ST_SetSRID(ST_MakePoint($2, $1), 4326)
		LIMIT $3
	`
	err := s.db.WithContext(ctx).Raw(query, lat, lon, limit).Scan(&stations).Error
	return stations, err
}

// StationsWithinRadius returns stored stations within radiusKm of a point.
func (s *Store) StationsWithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]StationDistance, error) {
	var stations []StationDistance
	query := `
		SELECT *, ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_m
		FROM noaa_station
		WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		ORDER BY distance_m
	`
	err := s.db.WithContext(ctx).Raw(query, lat, lon, radiusKm*1000).Scan(&stations).Error
	return stations, err
}

// StationsAll returns stations, optionally restricted to a bbox and to
// stations that have at least one daily summary.
func (s *Store) StationsAll(ctx context.Context, bbox *[4]float64, limit int, withData bool) ([]Station, error) {
	var stations []Station
	q := s.db.WithContext(ctx).Model(&Station{})
	if bbox != nil {
		q = q.Where("geom && ST_MakeEnvelope(?, ?, ?, ?, 4326)", bbox[1], bbox[0], bbox[3], bbox[2])
	}
	if withData {
		q = q.Where("EXISTS (SELECT 1 FROM noaa_daily_summary d WHERE d.station_id = noaa_station.station_id)")
	}
	err := q.Order("station_id").Limit(limit).Find(&stations).Error
	return stations, err
}

// GetStation fetches a station by canonical ID.
func (s *Store) GetStation(ctx context.Context, stationID string) (*Station, error) {
	var st Station
	err := s.db.WithContext(ctx).Where("station_id = ?", NormalizeStationID(stationID)).First(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// HourlyForecasts returns stored periods for a grid within [start, end],
// ascending, capped to limit.
func (s *Store) HourlyForecasts(ctx context.Context, gridID string, start, end *time.Time, limit int) ([]HourlyForecast, error) {
	var rows []HourlyForecast
	q := s.db.WithContext(ctx).Where("grid_id = ?", gridID)
	if start != nil {
		q = q.Where("start_time >= ?", *start)
	}
	if end != nil {
		q = q.Where("start_time <= ?", *end)
	}
	err := q.Order("start_time ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// FutureHourlyForecasts returns stored future periods for a grid.
func (s *Store) FutureHourlyForecasts(ctx context.Context, gridID string, limit int) ([]HourlyForecast, error) {
	now := time.Now()
	return s.HourlyForecasts(ctx, gridID, &now, nil, limit)
}

// DailyForecastRow is one day of the hourly forecast rolled up.
type DailyForecastRow struct {
	Date          time.Time `gorm:"column:date" json:"date"`
	TminC         *float64  `gorm:"column:tmin_c" json:"tmin_c,omitempty"`
	TmaxC         *float64  `gorm:"column:tmax_c" json:"tmax_c,omitempty"`
	MaxPrecipProb *float64  `gorm:"column:max_precip_prob" json:"max_precip_prob,omitempty"`
	MaxWindMps    *float64  `gorm:"column:max_wind_mps" json:"max_wind_mps,omitempty"`
}

// DailyForecast rolls the stored hourly periods up to one row per day.
func (s *Store) DailyForecast(ctx context.Context, gridID string, days int) ([]DailyForecastRow, error) {
	var rows []DailyForecastRow
	query := `
		SELECT start_time::date AS date,
		       MIN(temperature_c) AS tmin_c,
		       MAX(temperature_c) AS tmax_c,
		       MAX(precip_prob) AS max_precip_prob,
		       MAX(wind_speed_mps) AS max_wind_mps
		FROM nws_forecast_hourly
		WHERE grid_id = $1 AND start_time >= NOW()
		GROUP BY start_time::date
		ORDER BY date
		LIMIT $2
	`
	err := s.db.WithContext(ctx).Raw(query, gridID, days).Scan(&rows).Error
	return rows, err
}

// DailySummaries returns observation rows for a station in [start, end].
func (s *Store) DailySummaries(ctx context.Context, stationID string, start, end *time.Time) ([]DailySummary, error) {
	var rows []DailySummary
	q := s.db.WithContext(ctx).Where("station_id = ?", NormalizeStationID(stationID))
	if start != nil {
		q = q.Where("date >= ?", start.Format("2006-01-02"))
	}
	if end != nil {
		q = q.Where("date <= ?", end.Format("2006-01-02"))
	}
	err := q.Order("date ASC").Find(&rows).Error
	return rows, err
}

// PrimaryStationForGrid returns the primary mapped station for a grid.
func (s *Store) PrimaryStationForGrid(ctx context.Context, gridID string) (*GridpointStationMap, error) {
	var m GridpointStationMap
	err := s.db.WithContext(ctx).
		Where("grid_id = ? AND is_primary", gridID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// StationMapForGrid returns all mapped stations for a grid ordered by rank.
func (s *Store) StationMapForGrid(ctx context.Context, gridID string) ([]GridpointStationMap, error) {
	var rows []GridpointStationMap
	err := s.db.WithContext(ctx).
		Where("grid_id = ?", gridID).
		Order("rank ASC").
		Find(&rows).Error
	return rows, err
}

// PrimaryStationMappings returns every (grid, primary station) pair.
func (s *Store) PrimaryStationMappings(ctx context.Context) ([]GridpointStationMap, error) {
	var rows []GridpointStationMap
	err := s.db.WithContext(ctx).
		Where("is_primary").
		Order("grid_id").
		Find(&rows).Error
	return rows, err
}

// StationStatsFor aggregates a station's history: latest observation, the
// precipitation total over windowDays, and coverage.
func (s *Store) StationStatsFor(ctx context.Context, stationID string, windowDays int) (*StationStats, error) {
	var stats StationStats
	query := `
		SELECT
			latest.date AS latest_date,
			latest.tmax_c AS latest_tmax_c,
			latest.tmin_c AS latest_tmin_c,
			latest.prcp_mm AS latest_prcp_mm,
			agg.prcp_window_mm,
			agg.obs_count,
			agg.first_date,
			agg.last_date
		FROM (
			SELECT date, tmax_c, tmin_c, prcp_mm
			FROM noaa_daily_summary
			WHERE station_id = $1
			ORDER BY date DESC
			LIMIT 1
		) latest
		CROSS JOIN (
			SELECT
				SUM(prcp_mm) FILTER (WHERE date > CURRENT_DATE - $2::int) AS prcp_window_mm,
				COUNT(*) AS obs_count,
				MIN(date) AS first_date,
				MAX(date) AS last_date
			FROM noaa_daily_summary
			WHERE station_id = $1
		) agg
	`
	err := s.db.WithContext(ctx).Raw(query, NormalizeStationID(stationID), windowDays).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// StationsWithLatestObs returns stations inside the (expanded) bbox paired
// with their most recent daily observation. Used by the layer endpoints,
// which interpolate in-process from these rows.
func (s *Store) StationsWithLatestObs(ctx context.Context, minLat, minLon, maxLat, maxLon float64) ([]StationObs, error) {
	var rows []StationObs
	query := `
		SELECT s.station_id, s.name, s.lat, s.lon, d.date, d.tmax_c, d.tmin_c, d.prcp_mm
		FROM noaa_station s
		JOIN LATERAL (
			SELECT date, tmax_c, tmin_c, prcp_mm
			FROM noaa_daily_summary
			WHERE station_id = s.station_id
			ORDER BY date DESC
			LIMIT 1
		) d ON TRUE
		WHERE s.geom && ST_MakeEnvelope($2, $1, $4, $3, 4326)
	`
	err := s.db.WithContext(ctx).Raw(query, minLat, minLon, maxLat, maxLon).Scan(&rows).Error
	return rows, err
}

// PrecipWindowByStation returns per-station precipitation totals over the
// trailing window, for the precipitation layer.
type StationPrecip struct {
	StationID string   `gorm:"column:station_id" json:"station_id"`
	Name      string   `gorm:"column:name" json:"name"`
	Lat       float64  `gorm:"column:lat" json:"lat"`
	Lon       float64  `gorm:"column:lon" json:"lon"`
	PrcpMm    *float64 `gorm:"column:prcp_mm" json:"prcp_mm,omitempty"`
}

// PrecipWindow sums precipitation per station over the past windowDays.
func (s *Store) PrecipWindow(ctx context.Context, windowDays int) ([]StationPrecip, error) {
	var rows []StationPrecip
	query := `
		SELECT s.station_id, s.name, s.lat, s.lon, SUM(d.prcp_mm) AS prcp_mm
		FROM noaa_station s
		JOIN noaa_daily_summary d ON d.station_id = s.station_id
		WHERE d.date > CURRENT_DATE - $1::int
		GROUP BY s.station_id, s.name, s.lat, s.lon
	`
	err := s.db.WithContext(ctx).Raw(query, windowDays).Scan(&rows).Error
	return rows, err
}

// CachedAggForGrid returns the materialised aggregate for one grid.
func (s *Store) CachedAggForGrid(ctx context.Context, gridID string) (*CachedGridAgg, error) {
	var agg CachedGridAgg
	err := s.db.WithContext(ctx).Where("grid_id = ?", gridID).First(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// TableCount is a named row count for the metrics summary.
type TableCount struct {
	Table string `json:"table"`
	Count int64  `json:"count"`
}

// MetricsSummary reports row counts and the latest ingest timestamps.
func (s *Store) MetricsSummary(ctx context.Context) (map[string]interface{}, error) {
	counts := map[string]int64{}
	for _, t := range []string{
		"geo_gridpoint", "noaa_station", "gridpoint_station_map",
		"nws_forecast_hourly", "nws_alert", "noaa_daily_summary",
		"tracked_point", "cached_grid_agg", "ingest_run", "ingest_event",
	} {
		var n int64
		if err := s.db.WithContext(ctx).Table(t).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[t] = n
	}

	var lastRun *time.Time
	if err := s.db.WithContext(ctx).Model(&IngestRun{}).Select("MAX(started_at)").Scan(&lastRun).Error; err != nil {
		return nil, err
	}
	var lastHourly *time.Time
	if err := s.db.WithContext(ctx).Model(&HourlyForecast{}).Select("MAX(ingested_at)").Scan(&lastHourly).Error; err != nil {
		return nil, err
	}
	var lastDaily *time.Time
	if err := s.db.WithContext(ctx).Model(&DailySummary{}).Select("MAX(date)").Scan(&lastDaily).Error; err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"row_counts":         counts,
		"last_ingest_run":    lastRun,
		"last_hourly_ingest": lastHourly,
		"last_daily_date":    lastDaily,
	}, nil
}

// IngestRuns returns the most recent runs, newest first.
func (s *Store) IngestRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	var runs []IngestRun
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// IngestEvents returns events for a run, oldest first.
func (s *Store) IngestEvents(ctx context.Context, runID string, limit int) ([]IngestEvent, error) {
	var events []IngestEvent
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("event_id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

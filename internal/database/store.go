package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/constants"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps one of the two pools with the persistence primitives. The
// ingest pipelines and the REST server each get a Store bound to their
// own pool.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store bound to the given pool.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for raw queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// NormalizeStationID applies the canonical GHCND: prefix. Applied at every
// write and read boundary so the two ID forms never mix in storage.
func NormalizeStationID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	if strings.HasPrefix(id, constants.GHCNDPrefix) {
		return id
	}
	return constants.GHCNDPrefix + id
}

// UpsertGridpoint inserts or refreshes a gridpoint, maintaining its
// PostGIS point alongside the flat lat/lon columns.
func (s *Store) UpsertGridpoint(ctx context.Context, gp *Gridpoint) error {
	query := `
		INSERT INTO geo_gridpoint (
			grid_id, office, grid_x, grid_y, lat, lon,
			forecast_grid_data_url, forecast_hourly_url, last_refreshed_at, geom
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ST_SetSRID(ST_MakePoint($6, $5), 4326))
		ON CONFLICT (grid_id)
		DO UPDATE SET
			office = EXCLUDED.office,
			grid_x = EXCLUDED.grid_x,
			grid_y = EXCLUDED.grid_y,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			forecast_grid_data_url = EXCLUDED.forecast_grid_data_url,
			forecast_hourly_url = EXCLUDED.forecast_hourly_url,
			last_refreshed_at = EXCLUDED.last_refreshed_at,
			geom = EXCLUDED.geom
	`
	err := s.db.WithContext(ctx).Exec(query,
		gp.GridID, gp.Office, gp.GridX, gp.GridY, gp.Lat, gp.Lon,
		gp.ForecastGridDataURL, gp.ForecastHourlyURL, gp.LastRefreshedAt).Error
	if err != nil {
		return fmt.Errorf("gridpoint upsert failed: %w", err)
	}
	return nil
}

// UpsertStation inserts or refreshes a station row.
func (s *Store) UpsertStation(ctx context.Context, st *Station) error {
	st.StationID = NormalizeStationID(st.StationID)
	query := `
		INSERT INTO noaa_station (station_id, name, lat, lon, elevation_m, metadata, geom)
		VALUES ($1, $2, $3, $4, $5, $6, ST_SetSRID(ST_MakePoint($4, $3), 4326))
		ON CONFLICT (station_id)
		DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), noaa_station.name),
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			elevation_m = COALESCE(EXCLUDED.elevation_m, noaa_station.elevation_m),
			metadata = COALESCE(EXCLUDED.metadata, noaa_station.metadata),
			geom = EXCLUDED.geom
	`
	err := s.db.WithContext(ctx).Exec(query,
		st.StationID, st.Name, st.Lat, st.Lon, st.ElevationM, st.Metadata).Error
	if err != nil {
		return fmt.Errorf("station upsert failed: %w", err)
	}
	return nil
}

// ReplaceStationMap atomically swaps the station mapping for a gridpoint.
// The previous is_primary flag is cleared in the same transaction, so at
// most one primary exists per grid at any instant.
func (s *Store) ReplaceStationMap(ctx context.Context, gridID string, rows []GridpointStationMap) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("grid_id = ?", gridID).Delete(&GridpointStationMap{}).Error; err != nil {
			return fmt.Errorf("clearing station map for %s: %w", gridID, err)
		}
		for i := range rows {
			rows[i].GridID = gridID
			rows[i].StationID = NormalizeStationID(rows[i].StationID)
			rows[i].Rank = i + 1
			rows[i].IsPrimary = i == 0
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("inserting station map for %s: %w", gridID, err)
		}
		return nil
	})
}

// UpsertHourlyForecasts writes a batch of forecast periods keyed by
// (grid_id, start_time).
func (s *Store) UpsertHourlyForecasts(ctx context.Context, rows []HourlyForecast) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "grid_id"}, {Name: "start_time"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"end_time", "temperature_c", "wind_speed_mps", "wind_gust_mps",
			"wind_dir_deg", "precip_prob", "relative_humidity",
			"short_forecast", "issued_at", "raw_json", "ingested_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("hourly forecast upsert failed: %w", err)
	}
	return nil
}

// UpsertAlert writes one alert; geometry arrives as GeoJSON and may be nil.
func (s *Store) UpsertAlert(ctx context.Context, a *Alert, geometryGeoJSON []byte) error {
	var geomExpr string
	args := []interface{}{
		a.AlertID, a.Event, a.Severity, a.Certainty, a.Urgency,
		a.Headline, a.Description, a.Instruction,
		a.Effective, a.Onset, a.Expires, a.Ends,
		a.Status, a.MessageType, a.AreaDesc, a.RawJSON,
	}
	if geometryGeoJSON != nil {
		geomExpr = "ST_SetSRID(ST_GeomFromGeoJSON($17), 4326)"
		args = append(args, string(geometryGeoJSON))
	} else {
		geomExpr = "NULL"
	}
	query := fmt.Sprintf(`
		INSERT INTO nws_alert (
			alert_id, event, severity, certainty, urgency,
			headline, description, instruction,
			effective, onset, expires, ends,
			status, message_type, area_desc, raw_json, geom, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, %s, NOW())
		ON CONFLICT (alert_id)
		DO UPDATE SET
			event = EXCLUDED.event,
			severity = EXCLUDED.severity,
			certainty = EXCLUDED.certainty,
			urgency = EXCLUDED.urgency,
			headline = EXCLUDED.headline,
			description = EXCLUDED.description,
			instruction = EXCLUDED.instruction,
			effective = EXCLUDED.effective,
			onset = EXCLUDED.onset,
			expires = EXCLUDED.expires,
			ends = EXCLUDED.ends,
			status = EXCLUDED.status,
			message_type = EXCLUDED.message_type,
			area_desc = EXCLUDED.area_desc,
			raw_json = EXCLUDED.raw_json,
			geom = EXCLUDED.geom,
			ingested_at = EXCLUDED.ingested_at
	`, geomExpr)
	if err := s.db.WithContext(ctx).Exec(query, args...).Error; err != nil {
		return fmt.Errorf("alert upsert failed: %w", err)
	}
	return nil
}

// UpsertDailySummary writes one (station_id, date) observation row.
// Re-ingest of the same input is idempotent.
func (s *Store) UpsertDailySummary(ctx context.Context, row *DailySummary) error {
	row.StationID = NormalizeStationID(row.StationID)
	query := `
		INSERT INTO noaa_daily_summary (station_id, date, tmax_c, tmin_c, prcp_mm, raw_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id, date)
		DO UPDATE SET
			tmax_c = COALESCE(EXCLUDED.tmax_c, noaa_daily_summary.tmax_c),
			tmin_c = COALESCE(EXCLUDED.tmin_c, noaa_daily_summary.tmin_c),
			prcp_mm = COALESCE(EXCLUDED.prcp_mm, noaa_daily_summary.prcp_mm),
			raw_json = EXCLUDED.raw_json
	`
	err := s.db.WithContext(ctx).Exec(query,
		row.StationID, row.Date.Format("2006-01-02"), row.TmaxC, row.TminC, row.PrcpMm, row.RawJSON).Error
	if err != nil {
		return fmt.Errorf("daily summary upsert failed: %w", err)
	}
	return nil
}

// UpsertCachedAgg refreshes the materialised per-grid aggregate.
func (s *Store) UpsertCachedAgg(ctx context.Context, agg *CachedGridAgg) error {
	query := `
		INSERT INTO cached_grid_agg (grid_id, as_of, tmean_c, prcp_30d_mm, last_updated)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (grid_id)
		DO UPDATE SET
			as_of = EXCLUDED.as_of,
			tmean_c = EXCLUDED.tmean_c,
			prcp_30d_mm = EXCLUDED.prcp_30d_mm,
			last_updated = EXCLUDED.last_updated
	`
	err := s.db.WithContext(ctx).Exec(query,
		agg.GridID, agg.AsOf.Format("2006-01-02"), agg.TmeanC, agg.Prcp30dMm).Error
	if err != nil {
		return fmt.Errorf("cached aggregate upsert failed: %w", err)
	}
	return nil
}

// CreateTrackedPoint inserts a tracked point; (lat, lon) is unique.
func (s *Store) CreateTrackedPoint(ctx context.Context, tp *TrackedPoint) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lat"}, {Name: "lon"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(tp).Error
}

// DeleteTrackedPointByID removes a tracked point by ID.
func (s *Store) DeleteTrackedPointByID(ctx context.Context, id int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&TrackedPoint{})
	return res.RowsAffected, res.Error
}

// DeleteTrackedPointByLatLon removes a tracked point by its coordinates.
func (s *Store) DeleteTrackedPointByLatLon(ctx context.Context, lat, lon float64) (int64, error) {
	res := s.db.WithContext(ctx).Where("lat = ? AND lon = ?", lat, lon).Delete(&TrackedPoint{})
	return res.RowsAffected, res.Error
}

// ListTrackedPoints returns all tracked points.
func (s *Store) ListTrackedPoints(ctx context.Context) ([]TrackedPoint, error) {
	var points []TrackedPoint
	err := s.db.WithContext(ctx).Order("id").Find(&points).Error
	return points, err
}

// SeedTrackedPoints inserts configured seed points, skipping existing ones.
func (s *Store) SeedTrackedPoints(ctx context.Context, seeds []TrackedPoint) error {
	if len(seeds) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lat"}, {Name: "lon"}},
		DoNothing: true,
	}).Create(&seeds).Error
}

// LatestDailyDate returns the most recent observation date stored for a
// station, or the zero time when none exists.
func (s *Store) LatestDailyDate(ctx context.Context, stationID string) (time.Time, error) {
	var maxDate *time.Time
	err := s.db.WithContext(ctx).
		Model(&DailySummary{}).
		Where("station_id = ?", NormalizeStationID(stationID)).
		Select("MAX(date)").
		Scan(&maxDate).Error
	if err != nil {
		return time.Time{}, err
	}
	if maxDate == nil {
		return time.Time{}, nil
	}
	return *maxDate, nil
}

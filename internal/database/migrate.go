package database

import (
	"fmt"

	"gorm.io/gorm"
)

// CreateTables migrates the schema and applies the spatial DDL that GORM
// cannot express: PostGIS geometry columns, their indexes, and the read views.
func (c *Client) CreateTables() error {
	err := c.Ingest.AutoMigrate(
		Gridpoint{},
		Station{},
		GridpointStationMap{},
		HourlyForecast{},
		Alert{},
		DailySummary{},
		TrackedPoint{},
		CachedGridAgg{},
		IngestRun{},
		IngestEvent{},
		MLModelRun{},
		MLPrediction{},
		MLWeatherPrediction{},
	)
	if err != nil {
		return fmt.Errorf("error creating or migrating database tables: %w", err)
	}

	return applySpatialDDL(c.Ingest)
}

func applySpatialDDL(db *gorm.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,

		`ALTER TABLE geo_gridpoint ADD COLUMN IF NOT EXISTS geom geometry(Point, 4326)`,
		`ALTER TABLE noaa_station ADD COLUMN IF NOT EXISTS geom geometry(Point, 4326)`,
		`ALTER TABLE nws_alert ADD COLUMN IF NOT EXISTS geom geometry(Geometry, 4326)`,

		`CREATE INDEX IF NOT EXISTS idx_geo_gridpoint_geom ON geo_gridpoint USING gist (geom)`,
		`CREATE INDEX IF NOT EXISTS idx_noaa_station_geom ON noaa_station USING gist (geom)`,
		`CREATE INDEX IF NOT EXISTS idx_nws_alert_geom ON nws_alert USING gist (geom)`,
		`CREATE INDEX IF NOT EXISTS idx_nws_forecast_hourly_start ON nws_forecast_hourly (grid_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_noaa_daily_summary_date ON noaa_daily_summary (station_id, date)`,

		`CREATE OR REPLACE VIEW v_latest_hourly_forecast AS
		   SELECT DISTINCT ON (grid_id) *
		   FROM nws_forecast_hourly
		   WHERE start_time >= NOW()
		   ORDER BY grid_id, start_time ASC`,

		`CREATE OR REPLACE VIEW v_active_alerts AS
		   SELECT * FROM nws_alert
		   WHERE status = 'Actual'
		     AND (expires IS NULL OR expires > NOW())
		     AND (ends IS NULL OR ends > NOW())`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("spatial DDL failed (%.40s...): %w", stmt, err)
		}
	}
	return nil
}

package database

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SourceType tags the origin of an ML weather prediction row. Stored as
// text but handled as a typed variant everywhere above the SQL boundary.
type SourceType string

const (
	SourcePoint     SourceType = "point"
	SourceGridpoint SourceType = "gridpoint"
	SourceStation   SourceType = "station"
	SourceTracked   SourceType = "tracked"
)

// ParseSourceType validates an incoming source_type parameter.
func ParseSourceType(s string) (SourceType, bool) {
	switch SourceType(s) {
	case SourcePoint, SourceGridpoint, SourceStation, SourceTracked:
		return SourceType(s), true
	}
	return "", false
}

// MLWeatherFilter narrows the ml_weather_prediction read queries.
type MLWeatherFilter struct {
	SourceTypes []SourceType
	SourceID    string
	// Lat/Lon filter with a 0.01 degree box; only applied when HasPoint.
	HasPoint bool
	Lat      float64
	Lon      float64
	// Horizon constraint for the forecast path; MaxHorizonHours < 0 means
	// unconstrained.
	MaxHorizonHours int
}

const mlLatLonBox = 0.01

// MLRuns returns the recorded ML model runs, newest first.
func (s *Store) MLRuns(ctx context.Context, limit int) ([]MLModelRun, error) {
	var runs []MLModelRun
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// LatestMLPredictions returns the newest run's predictions for a grid.
func (s *Store) LatestMLPredictions(ctx context.Context, gridID string) ([]MLPrediction, error) {
	var rows []MLPrediction
	query := `
		SELECT p.* FROM ml_prediction p
		WHERE p.grid_id = $1
		  AND p.run_id = (
			SELECT run_id FROM ml_prediction
			WHERE grid_id = $1
			ORDER BY created_at DESC
			LIMIT 1
		  )
		ORDER BY p.valid_time ASC
	`
	err := s.db.WithContext(ctx).Raw(query, gridID).Scan(&rows).Error
	return rows, err
}

// MLWeatherLatest returns the newest prediction row per horizon matching
// the filter.
func (s *Store) MLWeatherLatest(ctx context.Context, f MLWeatherFilter, limit int) ([]MLWeatherPrediction, error) {
	q := s.mlWeatherBase(ctx, f)
	var rows []MLWeatherPrediction
	err := q.Order("as_of_date DESC, horizon_hours ASC, created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MLWeatherForecast returns forecast rows for the latest as_of_date
// matching the filter, ordered ascending by horizon.
func (s *Store) MLWeatherForecast(ctx context.Context, f MLWeatherFilter, limit int) ([]MLWeatherPrediction, error) {
	var latest *time.Time
	if err := s.mlWeatherBase(ctx, f).Select("MAX(as_of_date)").Scan(&latest).Error; err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	q := s.mlWeatherBase(ctx, f).Where("as_of_date = ?", latest.Format("2006-01-02"))
	var rows []MLWeatherPrediction
	err := q.Order("horizon_hours ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) mlWeatherBase(ctx context.Context, f MLWeatherFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&MLWeatherPrediction{})
	if len(f.SourceTypes) > 0 {
		types := make([]string, len(f.SourceTypes))
		for i, t := range f.SourceTypes {
			types[i] = string(t)
		}
		q = q.Where("source_type IN ?", types)
	}
	if f.SourceID != "" {
		q = q.Where("source_id = ?", f.SourceID)
	}
	if f.HasPoint {
		q = q.Where("lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?",
			f.Lat-mlLatLonBox, f.Lat+mlLatLonBox,
			f.Lon-mlLatLonBox, f.Lon+mlLatLonBox)
	}
	if f.MaxHorizonHours >= 0 {
		q = q.Where("horizon_hours BETWEEN 0 AND ?", f.MaxHorizonHours)
	}
	return q
}

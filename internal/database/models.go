package database

import (
	"time"

	"github.com/jackc/pgtype"
)

// Gridpoint is an NWS forecast tile, keyed by "office:gx,gy".
type Gridpoint struct {
	GridID              string     `gorm:"primaryKey;column:grid_id" json:"grid_id"`
	Office              string     `gorm:"column:office;not null" json:"office"`
	GridX               int        `gorm:"column:grid_x;not null" json:"grid_x"`
	GridY               int        `gorm:"column:grid_y;not null" json:"grid_y"`
	Lat                 float64    `gorm:"column:lat;not null" json:"lat"`
	Lon                 float64    `gorm:"column:lon;not null" json:"lon"`
	ForecastGridDataURL string     `gorm:"column:forecast_grid_data_url" json:"forecast_grid_data_url,omitempty"`
	ForecastHourlyURL   string     `gorm:"column:forecast_hourly_url" json:"forecast_hourly_url,omitempty"`
	LastRefreshedAt     *time.Time `gorm:"column:last_refreshed_at" json:"last_refreshed_at,omitempty"`
}

func (Gridpoint) TableName() string { return "geo_gridpoint" }

// Station is an observing station in the GHCN-Daily dataset.
type Station struct {
	StationID  string       `gorm:"primaryKey;column:station_id" json:"station_id"`
	Name       string       `gorm:"column:name" json:"name"`
	Lat        float64      `gorm:"column:lat;not null" json:"lat"`
	Lon        float64      `gorm:"column:lon;not null" json:"lon"`
	ElevationM *float64     `gorm:"column:elevation_m" json:"elevation_m,omitempty"`
	Metadata   pgtype.JSONB `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (Station) TableName() string { return "noaa_station" }

// GridpointStationMap links a gridpoint to a nearby station, ordered by distance.
type GridpointStationMap struct {
	ID        int64   `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	GridID    string  `gorm:"column:grid_id;not null;uniqueIndex:idx_grid_station" json:"grid_id"`
	StationID string  `gorm:"column:station_id;not null;uniqueIndex:idx_grid_station" json:"station_id"`
	DistanceM float64 `gorm:"column:distance_m;not null" json:"distance_m"`
	Rank      int     `gorm:"column:rank;not null" json:"rank"`
	IsPrimary bool    `gorm:"column:is_primary;not null;default:false" json:"is_primary"`
}

func (GridpointStationMap) TableName() string { return "gridpoint_station_map" }

// HourlyForecast is one NWS hourly forecast period for a gridpoint.
type HourlyForecast struct {
	GridID           string       `gorm:"primaryKey;column:grid_id" json:"grid_id"`
	StartTime        time.Time    `gorm:"primaryKey;column:start_time" json:"start_time"`
	EndTime          time.Time    `gorm:"column:end_time" json:"end_time"`
	TemperatureC     *float64     `gorm:"column:temperature_c" json:"temperature_c,omitempty"`
	WindSpeedMps     *float64     `gorm:"column:wind_speed_mps" json:"wind_speed_mps,omitempty"`
	WindGustMps      *float64     `gorm:"column:wind_gust_mps" json:"wind_gust_mps,omitempty"`
	WindDirDeg       *float64     `gorm:"column:wind_dir_deg" json:"wind_dir_deg,omitempty"`
	PrecipProb       *float64     `gorm:"column:precip_prob" json:"precip_prob,omitempty"`
	RelativeHumidity *float64     `gorm:"column:relative_humidity" json:"relative_humidity,omitempty"`
	ShortForecast    string       `gorm:"column:short_forecast" json:"short_forecast,omitempty"`
	IssuedAt         *time.Time   `gorm:"column:issued_at" json:"issued_at,omitempty"`
	RawJSON          pgtype.JSONB `gorm:"column:raw_json;type:jsonb" json:"-"`
	IngestedAt       time.Time    `gorm:"column:ingested_at;default:CURRENT_TIMESTAMP" json:"ingested_at"`
}

func (HourlyForecast) TableName() string { return "nws_forecast_hourly" }

// Alert is an NWS weather alert. Geometry lives in a PostGIS column
// maintained by the upsert SQL; superseded rows are retained.
type Alert struct {
	AlertID     string       `gorm:"primaryKey;column:alert_id" json:"alert_id"`
	Event       string       `gorm:"column:event" json:"event"`
	Severity    string       `gorm:"column:severity" json:"severity"`
	Certainty   string       `gorm:"column:certainty" json:"certainty"`
	Urgency     string       `gorm:"column:urgency" json:"urgency"`
	Headline    string       `gorm:"column:headline;type:text" json:"headline"`
	Description string       `gorm:"column:description;type:text" json:"description"`
	Instruction string       `gorm:"column:instruction;type:text" json:"instruction,omitempty"`
	Effective   *time.Time   `gorm:"column:effective" json:"effective,omitempty"`
	Onset       *time.Time   `gorm:"column:onset" json:"onset,omitempty"`
	Expires     *time.Time   `gorm:"column:expires" json:"expires,omitempty"`
	Ends        *time.Time   `gorm:"column:ends" json:"ends,omitempty"`
	Status      string       `gorm:"column:status" json:"status"`
	MessageType string       `gorm:"column:message_type" json:"message_type"`
	AreaDesc    string       `gorm:"column:area_desc;type:text" json:"area_desc"`
	RawJSON     pgtype.JSONB `gorm:"column:raw_json;type:jsonb" json:"-"`
	IngestedAt  time.Time    `gorm:"column:ingested_at;default:CURRENT_TIMESTAMP" json:"ingested_at"`
}

func (Alert) TableName() string { return "nws_alert" }

// DailySummary is one day of station observations, always Celsius and mm.
type DailySummary struct {
	StationID string       `gorm:"primaryKey;column:station_id" json:"station_id"`
	Date      time.Time    `gorm:"primaryKey;column:date;type:date" json:"date"`
	TmaxC     *float64     `gorm:"column:tmax_c" json:"tmax_c,omitempty"`
	TminC     *float64     `gorm:"column:tmin_c" json:"tmin_c,omitempty"`
	PrcpMm    *float64     `gorm:"column:prcp_mm" json:"prcp_mm,omitempty"`
	RawJSON   pgtype.JSONB `gorm:"column:raw_json;type:jsonb" json:"-"`
}

func (DailySummary) TableName() string { return "noaa_daily_summary" }

// TrackedPoint is a lat/lon the service has been asked to monitor.
type TrackedPoint struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Lat       float64   `gorm:"column:lat;not null;uniqueIndex:idx_tracked_latlon" json:"lat"`
	Lon       float64   `gorm:"column:lon;not null;uniqueIndex:idx_tracked_latlon" json:"lon"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TrackedPoint) TableName() string { return "tracked_point" }

// CachedGridAgg is the materialised per-grid rolling summary.
type CachedGridAgg struct {
	GridID      string    `gorm:"primaryKey;column:grid_id" json:"grid_id"`
	AsOf        time.Time `gorm:"column:as_of;type:date" json:"as_of"`
	TmeanC      *float64  `gorm:"column:tmean_c" json:"tmean_c,omitempty"`
	Prcp30dMm   *float64  `gorm:"column:prcp_30d_mm" json:"prcp_30d_mm,omitempty"`
	LastUpdated time.Time `gorm:"column:last_updated" json:"last_updated"`
}

func (CachedGridAgg) TableName() string { return "cached_grid_agg" }

// Ingest run statuses.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// IngestRun journals one invocation of a scheduled job.
type IngestRun struct {
	RunID      string     `gorm:"primaryKey;column:run_id" json:"run_id"`
	JobName    string     `gorm:"column:job_name;not null;index" json:"job_name"`
	StartedAt  time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Status     string     `gorm:"column:status;not null" json:"status"`
	Notes      string     `gorm:"column:notes;type:text" json:"notes,omitempty"`
}

func (IngestRun) TableName() string { return "ingest_run" }

// IngestEvent journals one external call made during a run.
type IngestEvent struct {
	EventID         int64        `gorm:"primaryKey;autoIncrement;column:event_id" json:"event_id"`
	RunID           string       `gorm:"column:run_id;index" json:"run_id"`
	Source          string       `gorm:"column:source;not null" json:"source"`
	Endpoint        string       `gorm:"column:endpoint;type:text" json:"endpoint"`
	HTTPStatus      *int         `gorm:"column:http_status" json:"http_status,omitempty"`
	ResponseMs      *int64       `gorm:"column:response_ms" json:"response_ms,omitempty"`
	Error           string       `gorm:"column:error;type:text" json:"error,omitempty"`
	ResponseHeaders pgtype.JSONB `gorm:"column:response_headers;type:jsonb" json:"-"`
	CreatedAt       time.Time    `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (IngestEvent) TableName() string { return "ingest_event" }

// MLModelRun records one training/inference run of the external ML service.
type MLModelRun struct {
	RunID      string     `gorm:"primaryKey;column:run_id" json:"run_id"`
	ModelName  string     `gorm:"column:model_name" json:"model_name"`
	StartedAt  time.Time  `gorm:"column:started_at" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Status     string     `gorm:"column:status" json:"status"`
}

func (MLModelRun) TableName() string { return "ml_model_run" }

// MLPrediction is a per-grid risk prediction produced by the ML service.
type MLPrediction struct {
	RunID     string    `gorm:"primaryKey;column:run_id" json:"run_id"`
	GridID    string    `gorm:"primaryKey;column:grid_id" json:"grid_id"`
	ValidTime time.Time `gorm:"primaryKey;column:valid_time" json:"valid_time"`
	RiskScore float64   `gorm:"column:risk_score" json:"risk_score"`
	RiskClass string    `gorm:"column:risk_class" json:"risk_class"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MLPrediction) TableName() string { return "ml_prediction" }

// MLWeatherPrediction is a per-source weather forecast row written by the
// ML service and served read-only.
type MLWeatherPrediction struct {
	ID           int64        `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	SourceType   string       `gorm:"column:source_type;not null;index:idx_mlwp_source" json:"source_type"`
	SourceID     string       `gorm:"column:source_id;not null;index:idx_mlwp_source" json:"source_id"`
	AsOfDate     time.Time    `gorm:"column:as_of_date;type:date;not null" json:"as_of_date"`
	HorizonHours int          `gorm:"column:horizon_hours;not null" json:"horizon_hours"`
	Lat          *float64     `gorm:"column:lat" json:"lat,omitempty"`
	Lon          *float64     `gorm:"column:lon" json:"lon,omitempty"`
	TminC        *float64     `gorm:"column:tmin_c" json:"tmin_c,omitempty"`
	TmaxC        *float64     `gorm:"column:tmax_c" json:"tmax_c,omitempty"`
	TmeanC       *float64     `gorm:"column:tmean_c" json:"tmean_c,omitempty"`
	PrcpMm       *float64     `gorm:"column:prcp_mm" json:"prcp_mm,omitempty"`
	DeltaC       *float64     `gorm:"column:delta_c" json:"delta_c,omitempty"`
	Confidence   *float64     `gorm:"column:confidence" json:"confidence,omitempty"`
	ModelName    string       `gorm:"column:model_name" json:"model_name"`
	Detail       pgtype.JSONB `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MLWeatherPrediction) TableName() string { return "ml_weather_prediction" }

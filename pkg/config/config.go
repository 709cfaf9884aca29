// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the complete service configuration.
type Config struct {
	Database  DatabaseConfig
	API       APIConfig
	NWS       NWSConfig
	NOAA      NOAAConfig
	Schedules ScheduleConfig
	Import    ImportConfig
	Tracked   []TrackedSeed
	ClockZone *time.Location
}

// DatabaseConfig holds connection settings for the two PostgreSQL pools.
type DatabaseConfig struct {
	ConnectionString string
	Username         string
	Password         string
	APIPoolMax       int
	IngestPoolMax    int
}

// APIConfig holds the REST server settings.
type APIConfig struct {
	Port int
	// NearGridM is the distance under which a stored gridpoint is served
	// directly instead of re-resolving the point upstream.
	NearGridM float64
}

// NWSConfig holds National Weather Service client settings.
type NWSConfig struct {
	BaseURL   string
	UserAgent string
}

// NOAAConfig holds Climate Data Online client and ingest settings.
type NOAAConfig struct {
	Enabled          bool
	BaseURL          string
	Token            string
	StationRadiusKm  float64
	StationLimit     int
	MapKeep          int
	BackfillStart    time.Time
	HistoryChunkDays int
	QPS              float64
	CBThreshold      int
	CBWindow         time.Duration
	CBCoolDown       time.Duration
	StationsFile     string
	BBox             *BBox
}

// BBox is a lat/lon bounding region used to filter local station files.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Contains reports whether the point falls inside the box.
func (b *BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ScheduleConfig holds the fixed-delay intervals for the scheduled job families.
type ScheduleConfig struct {
	Gridpoint    time.Duration
	Hourly       time.Duration
	Alerts       time.Duration
	NOAAStations time.Duration
	NOAADaily    time.Duration
	LocalImport  time.Duration
}

// ImportConfig holds the local historic importer settings.
type ImportConfig struct {
	Dir       string
	StateFile string
}

// TrackedSeed is a lat/lon pair seeded into tracked_point at startup.
type TrackedSeed struct {
	Lat float64
	Lon float64
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = DatabaseConfig{
		ConnectionString: os.Getenv("DB_JDBC_URL"),
		Username:         os.Getenv("DB_USERNAME"),
		Password:         os.Getenv("DB_PASSWORD"),
		APIPoolMax:       envInt("DB_API_POOL_MAX", 8),
		IngestPoolMax:    envInt("DB_INGEST_POOL_MAX", 12),
	}
	if cfg.Database.ConnectionString == "" {
		cfg.Database.ConnectionString = os.Getenv("DB_CONNECTION_STRING")
	}
	if cfg.Database.ConnectionString == "" {
		return nil, fmt.Errorf("DB_JDBC_URL (or DB_CONNECTION_STRING) is required")
	}

	cfg.API = APIConfig{
		Port:      envInt("API_PORT", 8080),
		NearGridM: envFloat("API_NEAR_GRID_M", 274.32),
	}

	cfg.NWS = NWSConfig{
		BaseURL:   envString("NWS_BASE_URL", "https://api.weather.gov"),
		UserAgent: os.Getenv("NWS_USER_AGENT"),
	}
	if cfg.NWS.UserAgent == "" {
		return nil, fmt.Errorf("NWS_USER_AGENT is required")
	}

	backfill, err := time.Parse("2006-01-02", envString("NOAA_BACKFILL_START", "2016-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOAA_BACKFILL_START: %w", err)
	}

	cfg.NOAA = NOAAConfig{
		Enabled:          envBool("NOAA_API_ENABLED", true),
		BaseURL:          envString("NOAA_BASE_URL", "https://www.ncdc.noaa.gov/cdo-web/api/v2"),
		Token:            os.Getenv("NOAA_TOKEN"),
		StationRadiusKm:  envFloat("NOAA_STATION_RADIUS_KM", 50),
		StationLimit:     envInt("NOAA_STATION_LIMIT", 25),
		MapKeep:          envInt("NOAA_MAP_KEEP", 5),
		BackfillStart:    backfill,
		HistoryChunkDays: envInt("NOAA_HISTORY_CHUNK_DAYS", 365),
		QPS:              envFloat("NOAA_QPS", 1),
		CBThreshold:      envInt("NOAA_CB_THRESHOLD", 5),
		CBWindow:         time.Duration(envInt("NOAA_CB_WINDOW_MS", 60000)) * time.Millisecond,
		CBCoolDown:       time.Duration(envInt("NOAA_CB_COOL_DOWN_MS", 300000)) * time.Millisecond,
		StationsFile:     os.Getenv("NOAA_STATIONS_FILE"),
	}
	if cfg.NOAA.Enabled && cfg.NOAA.Token == "" {
		return nil, fmt.Errorf("NOAA_TOKEN is required when NOAA_API_ENABLED=true")
	}
	if bbox := os.Getenv("NOAA_STATION_BBOX"); bbox != "" {
		b, err := ParseBBox(bbox)
		if err != nil {
			return nil, fmt.Errorf("invalid NOAA_STATION_BBOX: %w", err)
		}
		cfg.NOAA.BBox = b
	}

	cfg.Schedules = ScheduleConfig{}
	for _, s := range []struct {
		env string
		def string
		dst *time.Duration
	}{
		{"SCHED_GRIDPOINT", "PT24H", &cfg.Schedules.Gridpoint},
		{"SCHED_HOURLY", "PT30M", &cfg.Schedules.Hourly},
		{"SCHED_ALERTS", "PT5M", &cfg.Schedules.Alerts},
		{"SCHED_NOAA_STATIONS", "P7D", &cfg.Schedules.NOAAStations},
		{"SCHED_NOAA_DAILY", "P1D", &cfg.Schedules.NOAADaily},
		{"SCHED_LOCAL_IMPORT", "PT1H", &cfg.Schedules.LocalImport},
	} {
		d, err := ParseISODuration(envString(s.env, s.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", s.env, err)
		}
		*s.dst = d
	}

	cfg.Import = ImportConfig{
		Dir:       os.Getenv("STATION_HISTORIC_DIR"),
		StateFile: os.Getenv("STATION_HISTORIC_STATE_FILE"),
	}
	if cfg.Import.Dir != "" && cfg.Import.StateFile == "" {
		cfg.Import.StateFile = cfg.Import.Dir + "/.import-state.db"
	}

	if seeds := os.Getenv("TRACKED_POINTS"); seeds != "" {
		cfg.Tracked, err = ParseTrackedPoints(seeds)
		if err != nil {
			return nil, fmt.Errorf("invalid TRACKED_POINTS: %w", err)
		}
	}

	zone := envString("CLOCK_ZONE", "America/Los_Angeles")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid CLOCK_ZONE %q: %w", zone, err)
	}
	cfg.ClockZone = loc

	return cfg, nil
}

// ParseTrackedPoints parses the "lat,lon|lat,lon" seed format.
func ParseTrackedPoints(s string) ([]TrackedSeed, error) {
	var seeds []TrackedSeed
	for _, pair := range strings.Split(s, "|") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed point %q", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed latitude in %q", pair)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed longitude in %q", pair)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("point %q out of range", pair)
		}
		seeds = append(seeds, TrackedSeed{Lat: lat, Lon: lon})
	}
	return seeds, nil
}

// ParseBBox parses "minLat,minLon,maxLat,maxLon".
func ParseBBox(s string) (*BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected minLat,minLon,maxLat,maxLon")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed coordinate %q", p)
		}
		vals[i] = v
	}
	b := &BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return nil, fmt.Errorf("inverted bounding box")
	}
	return b, nil
}

// ParseISODuration parses the subset of ISO-8601 durations the schedule
// settings use: PnDTnHnMnS and the date-only PnD / PnW forms.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("duration %q must start with P", orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num += string(r)
		case r == 'T':
			inTime = true
		default:
			if num == "" {
				return 0, fmt.Errorf("duration %q has a unit with no value", orig)
			}
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("duration %q: %w", orig, err)
			}
			num = ""
			switch {
			case r == 'W' && !inTime:
				total += time.Duration(v * float64(7*24*time.Hour))
			case r == 'D' && !inTime:
				total += time.Duration(v * float64(24*time.Hour))
			case r == 'H' && inTime:
				total += time.Duration(v * float64(time.Hour))
			case r == 'M' && inTime:
				total += time.Duration(v * float64(time.Minute))
			case r == 'S' && inTime:
				total += time.Duration(v * float64(time.Second))
			default:
				return 0, fmt.Errorf("duration %q has unsupported unit %q", orig, string(r))
			}
		}
	}
	if num != "" {
		return 0, fmt.Errorf("duration %q has a trailing value with no unit", orig)
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", orig)
	}
	return total, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

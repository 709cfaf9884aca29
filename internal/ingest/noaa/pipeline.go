// Package noaa maps gridpoints to observing stations and backfills daily
// observation history from Climate Data Online.
package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	noaaclient "github.com/weatherdepot/weatherdepot/internal/clients/noaa"
	"github.com/weatherdepot/weatherdepot/internal/constants"
	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/geo"
	"github.com/weatherdepot/weatherdepot/internal/ingestlog"
	"github.com/weatherdepot/weatherdepot/pkg/config"
	"go.uber.org/zap"
)

// AggregateWindowDays is the trailing window for the cached per-grid
// aggregates.
const AggregateWindowDays = 30

// Pipeline runs the NOAA job families against the ingest store.
type Pipeline struct {
	store   *database.Store
	client  *noaaclient.Client
	journal *ingestlog.Journal
	cfg     *config.NOAAConfig
	zone    *time.Location
	// importDir is checked for per-station CSVs before calling the
	// provider; the local importer owns consuming them.
	importDir string
	logger    *zap.SugaredLogger
}

// NewPipeline wires the NOAA ingest jobs.
func NewPipeline(store *database.Store, client *noaaclient.Client, journal *ingestlog.Journal, cfg *config.NOAAConfig, zone *time.Location, importDir string, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		store:     store,
		client:    client,
		journal:   journal,
		cfg:       cfg,
		zone:      zone,
		importDir: importDir,
		logger:    logger,
	}
}

// candidate is a station considered for mapping to a grid.
type candidate struct {
	station database.Station
	distKm  float64
}

// MapStations resolves the nearest stations for every stored gridpoint
// and atomically replaces each grid's mapping. A local stations inventory
// is preferred; the CDO stations API is the fallback.
func (p *Pipeline) MapStations(ctx context.Context, run *ingestlog.Run) error {
	grids, err := p.store.AllGridpoints(ctx)
	if err != nil {
		return fmt.Errorf("listing gridpoints: %w", err)
	}

	var local []LocalStation
	if p.cfg.StationsFile != "" {
		local, err = LoadStationsFile(p.cfg.StationsFile, p.cfg.BBox)
		if err != nil {
			p.logger.Warnw("local stations file unavailable, falling back to API", "path", p.cfg.StationsFile, "error", err)
			local = nil
		} else {
			p.logger.Infow("loaded local stations inventory", "stations", len(local))
		}
	}

	for _, gp := range grids {
		var candidates []candidate
		if local != nil {
			candidates = p.candidatesFromFile(local, gp)
		} else {
			candidates, err = p.candidatesFromAPI(ctx, gp)
			if err != nil {
				p.logger.Errorw("station search failed", "grid_id", gp.GridID, "error", err)
				run.RecordItemFailure()
				continue
			}
		}

		if err := p.applyMapping(ctx, gp.GridID, candidates); err != nil {
			p.logger.Errorw("station mapping failed", "grid_id", gp.GridID, "error", err)
			run.RecordItemFailure()
			continue
		}
		run.RecordItemSuccess()
	}
	return nil
}

func (p *Pipeline) candidatesFromFile(local []LocalStation, gp database.Gridpoint) []candidate {
	var out []candidate
	for _, st := range local {
		d := geo.HaversineKm(gp.Lat, gp.Lon, st.Lat, st.Lon)
		if d > p.cfg.StationRadiusKm {
			continue
		}
		out = append(out, candidate{
			station: database.Station{
				StationID:  database.NormalizeStationID(st.ID),
				Name:       st.Name,
				Lat:        st.Lat,
				Lon:        st.Lon,
				ElevationM: st.ElevationM,
			},
			distKm: d,
		})
	}
	return out
}

func (p *Pipeline) candidatesFromAPI(ctx context.Context, gp database.Gridpoint) ([]candidate, error) {
	results, err := p.client.StationsNear(ctx, gp.Lat, gp.Lon, p.cfg.StationRadiusKm, p.cfg.StationLimit)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, r := range results {
		d := geo.HaversineKm(gp.Lat, gp.Lon, r.Latitude, r.Longitude)
		if d > p.cfg.StationRadiusKm {
			continue
		}
		st := database.Station{
			StationID:  database.NormalizeStationID(r.ID),
			Name:       r.Name,
			Lat:        r.Latitude,
			Lon:        r.Longitude,
			ElevationM: r.Elevation,
		}
		out = append(out, candidate{station: st, distKm: d})
	}
	return out, nil
}

// selectNearest orders candidates by distance and keeps the top keep.
// The first entry becomes the grid's primary station downstream.
func selectNearest(candidates []candidate, keep int) []candidate {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distKm < candidates[j].distKm
	})
	if keep > 0 && len(candidates) > keep {
		candidates = candidates[:keep]
	}
	return candidates
}

// applyMapping upserts the candidate stations, keeps the top K by
// distance, and swaps the mapping; the nearest becomes primary.
func (p *Pipeline) applyMapping(ctx context.Context, gridID string, candidates []candidate) error {
	candidates = selectNearest(candidates, p.cfg.MapKeep)

	rows := make([]database.GridpointStationMap, 0, len(candidates))
	for _, c := range candidates {
		if err := p.store.UpsertStation(ctx, &c.station); err != nil {
			return err
		}
		rows = append(rows, database.GridpointStationMap{
			StationID: c.station.StationID,
			DistanceM: c.distKm * 1000,
		})
	}
	return p.store.ReplaceStationMap(ctx, gridID, rows)
}

// IngestDaily backfills daily observations for every primary station,
// then refreshes the cached grid aggregates.
func (p *Pipeline) IngestDaily(ctx context.Context, run *ingestlog.Run) error {
	primaries, err := p.store.PrimaryStationMappings(ctx)
	if err != nil {
		return fmt.Errorf("listing primary stations: %w", err)
	}

	end := time.Now().In(p.zone).AddDate(0, 0, -1)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	for _, m := range primaries {
		if err := p.backfillStation(ctx, m.StationID, end); err != nil {
			p.logger.Errorw("daily backfill failed, trying siblings", "station_id", m.StationID, "grid_id", m.GridID, "error", err)
			if err := p.backfillSiblings(ctx, m, end); err != nil {
				p.logger.Errorw("all sibling stations failed", "grid_id", m.GridID, "error", err)
				run.RecordItemFailure()
				continue
			}
		}
		run.RecordItemSuccess()
	}

	if err := p.RefreshAggregates(ctx, end, AggregateWindowDays); err != nil {
		return fmt.Errorf("aggregate refresh: %w", err)
	}
	return nil
}

// backfillSiblings retries the remaining mapped stations of the grid,
// nearest first, once each.
func (p *Pipeline) backfillSiblings(ctx context.Context, m database.GridpointStationMap, end time.Time) error {
	siblings, err := p.store.StationMapForGrid(ctx, m.GridID)
	if err != nil {
		return err
	}
	var lastErr error = fmt.Errorf("no sibling stations mapped for %s", m.GridID)
	for _, s := range siblings {
		if s.StationID == m.StationID {
			continue
		}
		if err := p.backfillStation(ctx, s.StationID, end); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// backfillStation ingests [dbMax+1, end] for one station in bounded
// date-range chunks.
func (p *Pipeline) backfillStation(ctx context.Context, stationID string, end time.Time) error {
	if p.localCSVExists(stationID) {
		p.logger.Debugw("local CSV present, skipping provider backfill", "station_id", stationID)
		return nil
	}

	dbMax, err := p.store.LatestDailyDate(ctx, stationID)
	if err != nil {
		return err
	}
	start := p.cfg.BackfillStart
	if !dbMax.IsZero() {
		start = dbMax.AddDate(0, 0, 1)
	}
	if start.After(end) {
		return nil
	}

	for _, w := range backfillWindows(start, end, p.cfg.HistoryChunkDays) {
		records, err := p.client.DailyGHCNDAll(ctx, stationID, w.start, w.end)
		if err != nil {
			return err
		}
		if err := p.storeDailyRecords(ctx, stationID, records); err != nil {
			return err
		}
	}
	return nil
}

type dateWindow struct {
	start, end time.Time
}

// backfillWindows tiles [start, end] into inclusive windows of at most
// chunkDays each. Every day in the range appears in exactly one window.
func backfillWindows(start, end time.Time, chunkDays int) []dateWindow {
	if chunkDays <= 0 {
		chunkDays = 365
	}
	var out []dateWindow
	for cs := start; !cs.After(end); {
		ce := cs.AddDate(0, 0, chunkDays-1)
		if ce.After(end) {
			ce = end
		}
		out = append(out, dateWindow{start: cs, end: ce})
		cs = ce.AddDate(0, 0, 1)
	}
	return out
}

// storeDailyRecords groups flat (date, datatype, value) rows by date and
// upserts one summary row per day. CDO is queried with units=metric, so
// values arrive as Celsius and millimetres already.
func (p *Pipeline) storeDailyRecords(ctx context.Context, stationID string, records []noaaclient.DailyRecord) error {
	type dayAgg struct {
		tmax, tmin, prcp *float64
		raw              []noaaclient.DailyRecord
	}
	days := make(map[string]*dayAgg)

	for _, rec := range records {
		dateStr := rec.Date
		if len(dateStr) >= 10 {
			dateStr = dateStr[:10]
		}
		agg := days[dateStr]
		if agg == nil {
			agg = &dayAgg{}
			days[dateStr] = agg
		}
		v := rec.Value
		switch rec.Datatype {
		case "TMAX":
			agg.tmax = &v
		case "TMIN":
			agg.tmin = &v
		case "PRCP":
			agg.prcp = &v
		}
		agg.raw = append(agg.raw, rec)
	}

	for dateStr, agg := range days {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			p.logger.Warnw("unparseable observation date", "station_id", stationID, "date", dateStr)
			continue
		}
		row := &database.DailySummary{
			StationID: stationID,
			Date:      date,
			TmaxC:     agg.tmax,
			TminC:     agg.tmin,
			PrcpMm:    agg.prcp,
		}
		if raw, err := json.Marshal(agg.raw); err == nil {
			row.RawJSON.Set(raw)
		}
		if err := p.store.UpsertDailySummary(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// localCSVExists reports whether the import directory holds a delta CSV
// for the station, either at the top level or in a date subdirectory.
func (p *Pipeline) localCSVExists(stationID string) bool {
	if p.importDir == "" {
		return false
	}
	raw := strings.TrimPrefix(stationID, constants.GHCNDPrefix)
	name := raw + ".csv"

	if _, err := os.Stat(filepath.Join(p.importDir, name)); err == nil {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(p.importDir, "*", name))
	return len(matches) > 0
}

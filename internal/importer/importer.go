// Package importer consumes local GHCND daily-summary files: per-station
// delta CSVs and the bulk daily-summaries archive.
package importer

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/ingestlog"
	"go.uber.org/zap"
)

// ArchiveName is the bulk archive the importer watches for.
const ArchiveName = "daily-summaries-latest.tar.gz"

// oldArchiveDir is where consumed archives are parked.
const oldArchiveDir = "oldDailys"

// Importer scans a directory for station CSVs and the bulk archive and
// ingests anything newer than its recorded state.
type Importer struct {
	dir    string
	state  *StateStore
	store  *database.Store
	logger *zap.SugaredLogger

	warnedReadOnly bool
}

// New creates an importer over the configured directory.
func New(dir string, state *StateStore, store *database.Store, logger *zap.SugaredLogger) *Importer {
	return &Importer{dir: dir, state: state, store: store, logger: logger}
}

// Run processes the bulk archive first (bulk history), then the
// per-station delta CSVs.
func (im *Importer) Run(ctx context.Context, run *ingestlog.Run) error {
	if im.dir == "" {
		return nil
	}

	if err := im.processArchive(ctx, run); err != nil {
		return err
	}

	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return fmt.Errorf("reading import dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		if err := im.processCSVFile(ctx, filepath.Join(im.dir, e.Name())); err != nil {
			im.logger.Errorw("station CSV import failed", "file", e.Name(), "error", err)
			if run != nil {
				run.RecordItemFailure()
			}
			continue
		}
		if run != nil {
			run.RecordItemSuccess()
		}
	}
	return nil
}

// processCSVFile ingests one per-station delta CSV and relocates it into
// a date subdirectory on success.
func (im *Importer) processCSVFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	// The filename names the state key; observation rows always use the
	// row's own STATION column.
	key := database.NormalizeStationID(strings.TrimSuffix(filepath.Base(path), ".csv"))
	mtimeMs := info.ModTime().UnixMilli()
	seen, err := im.state.Get(key)
	if err != nil {
		return err
	}
	if mtimeMs <= seen {
		im.logger.Debugw("file unchanged, skipping", "file", path)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	result, err := im.ingestCSV(ctx, f, nil)
	f.Close()
	if err != nil {
		return err
	}

	if !result.wide {
		im.logger.Warnw("CSV is not in the wide daily-summary schema, marking seen", "file", path)
	} else if result.rows > 0 {
		im.moveToDateDir(path, result.maxDate)
	}

	return im.state.Put(key, mtimeMs)
}

// processArchive streams the bulk tar.gz when its mtime advanced.
func (im *Importer) processArchive(ctx context.Context, run *ingestlog.Run) error {
	path := filepath.Join(im.dir, ArchiveName)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	mtimeMs := info.ModTime().UnixMilli()
	seen, err := im.state.Get(ArchiveStateKey)
	if err != nil {
		return err
	}
	if mtimeMs <= seen {
		return nil
	}

	im.logger.Infow("importing bulk daily-summary archive", "file", path)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer gz.Close()

	// Shared dbMax cache: stations repeat across entries and lookups are
	// the dominant cost of a full archive pass.
	dbMax := make(map[string]time.Time)

	tr := tar.NewReader(gz)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".csv") {
			continue
		}
		if _, err := im.ingestCSV(ctx, tr, dbMax); err != nil {
			im.logger.Errorw("archive entry import failed", "entry", hdr.Name, "error", err)
			if run != nil {
				run.RecordItemFailure()
			}
			continue
		}
		files++
		if run != nil {
			run.RecordItemSuccess()
		}
	}

	im.logger.Infow("bulk archive imported", "csv_files", files)

	if err := im.state.Put(ArchiveStateKey, mtimeMs); err != nil {
		return err
	}

	oldDir := filepath.Join(im.dir, oldArchiveDir)
	if err := os.MkdirAll(oldDir, 0o755); err == nil {
		if err := os.Rename(path, filepath.Join(oldDir, ArchiveName)); err != nil {
			im.warnReadOnly(err)
		}
	} else {
		im.warnReadOnly(err)
	}
	return nil
}

type csvResult struct {
	wide    bool
	rows    int
	maxDate time.Time
}

// ingestCSV consumes one wide-schema daily-summary CSV. dbMaxCache, when
// non-nil, memoises per-station latest stored dates across calls.
func (im *Importer) ingestCSV(ctx context.Context, r io.Reader, dbMaxCache map[string]time.Time) (*csvResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &csvResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToUpper(strings.TrimSpace(h))] = i
	}

	_, hasStation := cols["STATION"]
	_, hasDate := cols["DATE"]
	_, hasPrcp := cols["PRCP"]
	_, hasTmax := cols["TMAX"]
	_, hasTmin := cols["TMIN"]
	if !hasStation || !hasDate || !(hasPrcp || hasTmax || hasTmin) {
		return &csvResult{wide: false}, nil
	}

	result := &csvResult{wide: true}
	if dbMaxCache == nil {
		dbMaxCache = make(map[string]time.Time)
	}

	stationsSeen := make(map[string]bool)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		stationID := database.NormalizeStationID(field(record, cols, "STATION"))
		if stationID == "" {
			continue
		}
		date, err := time.Parse("2006-01-02", field(record, cols, "DATE"))
		if err != nil {
			continue
		}

		max, ok := dbMaxCache[stationID]
		if !ok {
			max, err = im.store.LatestDailyDate(ctx, stationID)
			if err != nil {
				return nil, err
			}
			dbMaxCache[stationID] = max
		}
		if !max.IsZero() && !date.After(max) {
			continue
		}

		if !stationsSeen[stationID] {
			if err := im.upsertStationFromRow(ctx, stationID, record, cols); err != nil {
				return nil, err
			}
			stationsSeen[stationID] = true
		}

		row := &database.DailySummary{StationID: stationID, Date: date}
		// GHCND raw values are tenths of degrees C and tenths of mm.
		row.TmaxC = tenths(field(record, cols, "TMAX"))
		row.TminC = tenths(field(record, cols, "TMIN"))
		row.PrcpMm = tenths(field(record, cols, "PRCP"))
		if raw, err := json.Marshal(rowMap(record, header)); err == nil {
			row.RawJSON.Set(raw)
		}

		if err := im.store.UpsertDailySummary(ctx, row); err != nil {
			return nil, err
		}
		result.rows++
		if date.After(result.maxDate) {
			result.maxDate = date
		}
	}
	return result, nil
}

func (im *Importer) upsertStationFromRow(ctx context.Context, stationID string, record []string, cols map[string]int) error {
	st := &database.Station{StationID: stationID, Name: field(record, cols, "NAME")}
	if lat, err := strconv.ParseFloat(field(record, cols, "LATITUDE"), 64); err == nil {
		st.Lat = lat
	}
	if lon, err := strconv.ParseFloat(field(record, cols, "LONGITUDE"), 64); err == nil {
		st.Lon = lon
	}
	if elev, err := strconv.ParseFloat(field(record, cols, "ELEVATION"), 64); err == nil {
		st.ElevationM = &elev
	}
	return im.store.UpsertStation(ctx, st)
}

// moveToDateDir relocates a consumed CSV under its max observation date.
// A read-only base directory downgrades to a one-time warning.
func (im *Importer) moveToDateDir(path string, maxDate time.Time) {
	if maxDate.IsZero() {
		return
	}
	sub := filepath.Join(im.dir, maxDate.Format("2006-01-02"))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		im.warnReadOnly(err)
		return
	}
	if err := os.Rename(path, filepath.Join(sub, filepath.Base(path))); err != nil {
		im.warnReadOnly(err)
	}
}

func (im *Importer) warnReadOnly(err error) {
	if im.warnedReadOnly {
		return
	}
	im.warnedReadOnly = true
	im.logger.Warnw("import directory is not writable; consumed files stay in place", "error", err)
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// tenths converts a raw GHCND value (tenths) to its metric unit.
func tenths(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v /= 10
	return &v
}

func rowMap(record, header []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(record) {
			m[h] = record[i]
		}
	}
	return m
}

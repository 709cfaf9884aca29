// Command station-import loads a GHCND stations inventory file into the
// noaa_station table, optionally filtered to a bounding box, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/weatherdepot/weatherdepot/internal/database"
	ingestnoaa "github.com/weatherdepot/weatherdepot/internal/ingest/noaa"
	"github.com/weatherdepot/weatherdepot/internal/log"
	"github.com/weatherdepot/weatherdepot/pkg/config"
)

func main() {
	file := flag.String("file", "", "path to ghcnd-stations.txt (required)")
	bboxFlag := flag.String("bbox", "", "bounding box minLat,minLon,maxLat,maxLon")
	connString := flag.String("db", os.Getenv("DB_JDBC_URL"), "PostgreSQL connection string")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := run(*file, *bboxFlag, *connString, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "station-import: %v\n", err)
		os.Exit(1)
	}
}

func run(file, bboxFlag, connString string, debug bool) error {
	if file == "" {
		return fmt.Errorf("-file is required")
	}
	if connString == "" {
		return fmt.Errorf("-db or DB_JDBC_URL is required")
	}
	if err := log.Init(debug); err != nil {
		return err
	}
	defer log.Sync()

	var bbox *config.BBox
	if bboxFlag != "" {
		b, err := config.ParseBBox(bboxFlag)
		if err != nil {
			return fmt.Errorf("invalid -bbox: %w", err)
		}
		bbox = b
	}

	stations, err := ingestnoaa.LoadStationsFile(file, bbox)
	if err != nil {
		return err
	}
	log.Infow("stations file loaded", "stations", len(stations))

	db, err := database.CreateConnection(connString)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	store := database.NewStore(db)

	ctx := context.Background()
	imported := 0
	for _, st := range stations {
		row := &database.Station{
			StationID:  st.ID,
			Name:       st.Name,
			Lat:        st.Lat,
			Lon:        st.Lon,
			ElevationM: st.ElevationM,
		}
		if err := store.UpsertStation(ctx, row); err != nil {
			return fmt.Errorf("upserting %s: %w", st.ID, err)
		}
		imported++
	}

	log.Infow("station import complete", "imported", imported)
	return nil
}

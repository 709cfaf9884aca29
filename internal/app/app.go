// Package app assembles the service: configuration, storage, the request
// fabric, ingest pipelines, scheduler, and the REST API.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	noaaclient "github.com/weatherdepot/weatherdepot/internal/clients/noaa"
	nwsclient "github.com/weatherdepot/weatherdepot/internal/clients/nws"
	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/fabric"
	ingestnoaa "github.com/weatherdepot/weatherdepot/internal/ingest/noaa"
	ingestnws "github.com/weatherdepot/weatherdepot/internal/ingest/nws"
	"github.com/weatherdepot/weatherdepot/internal/importer"
	"github.com/weatherdepot/weatherdepot/internal/ingestlog"
	"github.com/weatherdepot/weatherdepot/internal/log"
	"github.com/weatherdepot/weatherdepot/internal/restserver"
	"github.com/weatherdepot/weatherdepot/internal/scheduler"
	"github.com/weatherdepot/weatherdepot/pkg/config"
)

// Run starts the service and blocks until SIGINT or SIGTERM.
func Run(debug bool) error {
	if err := log.Init(debug); err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.GetSugaredLogger()

	dbc := database.NewClient(&cfg.Database, logger)
	if err := dbc.Connect(); err != nil {
		return err
	}
	defer dbc.Close()

	if err := dbc.CreateTables(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	apiStore := database.NewStore(dbc.API)
	ingestStore := database.NewStore(dbc.Ingest)
	journal := ingestlog.NewJournal(ingestStore)

	settings := map[string]fabric.UpstreamSettings{
		nwsclient.Upstream: {QPS: 1, Breaker: fabric.DefaultBreakerSettings()},
		noaaclient.Upstream: {
			QPS: cfg.NOAA.QPS,
			Breaker: fabric.BreakerSettings{
				Threshold: cfg.NOAA.CBThreshold,
				Window:    cfg.NOAA.CBWindow,
				CoolDown:  cfg.NOAA.CBCoolDown,
			},
		},
	}
	registry := fabric.NewRegistry(settings, journal, logger)

	callUpstream := func(ctx context.Context, upstream, method, url string, headers map[string]string, body []byte, timeout time.Duration) ([]byte, error) {
		resp, err := registry.Do(ctx, upstream, method, url, headers, body, timeout)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	nwsClient := nwsclient.NewClient(cfg.NWS.BaseURL, cfg.NWS.UserAgent, callUpstream)
	noaaClient := noaaclient.NewClient(cfg.NOAA.BaseURL, cfg.NOAA.Token, callUpstream)

	nwsPipe := ingestnws.NewPipeline(ingestStore, nwsClient, journal, log.With("component", "nws-ingest"))
	noaaPipe := ingestnoaa.NewPipeline(ingestStore, noaaClient, journal, &cfg.NOAA, cfg.ClockZone, cfg.Import.Dir, log.With("component", "noaa-ingest"))

	if len(cfg.Tracked) > 0 {
		seeds := make([]database.TrackedPoint, 0, len(cfg.Tracked))
		for _, t := range cfg.Tracked {
			seeds = append(seeds, database.TrackedPoint{Lat: t.Lat, Lon: t.Lon})
		}
		if err := ingestStore.SeedTrackedPoints(context.Background(), seeds); err != nil {
			return fmt.Errorf("seeding tracked points: %w", err)
		}
		log.Infow("tracked points seeded", "count", len(seeds))
	}

	jobs := []scheduler.Job{
		{Name: "nws-gridpoints", Interval: cfg.Schedules.Gridpoint, Run: nwsPipe.RefreshGridpoints},
		{Name: "nws-hourly", Interval: cfg.Schedules.Hourly, Run: nwsPipe.IngestHourly},
		{Name: "nws-alerts", Interval: cfg.Schedules.Alerts, Run: nwsPipe.IngestAlerts},
	}
	if cfg.NOAA.Enabled {
		jobs = append(jobs,
			scheduler.Job{Name: "noaa-stations", Interval: cfg.Schedules.NOAAStations, Run: noaaPipe.MapStations},
			scheduler.Job{Name: "noaa-daily", Interval: cfg.Schedules.NOAADaily, Run: noaaPipe.IngestDaily},
		)
	}

	var state *importer.StateStore
	if cfg.Import.Dir != "" {
		state, err = importer.OpenStateStore(cfg.Import.StateFile)
		if err != nil {
			return fmt.Errorf("opening import state: %w", err)
		}
		defer state.Close()

		imp := importer.New(cfg.Import.Dir, state, ingestStore, log.With("component", "importer"))
		jobs = append(jobs, scheduler.Job{
			Name:     "local-import",
			Interval: cfg.Schedules.LocalImport,
			Run:      imp.Run,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(journal, log.With("component", "scheduler"), jobs)
	sched.Start(ctx)

	var wg sync.WaitGroup
	server := restserver.NewServer(cfg, dbc, apiStore, registry.Metrics(), nwsClient, nwsPipe, journal, logger)
	server.Start(ctx, &wg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("shutting down", "signal", sig.String())

	cancel()
	sched.Stop()
	wg.Wait()
	return nil
}

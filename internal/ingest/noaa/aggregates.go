package noaa

import (
	"context"
	"fmt"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/database"
	"gonum.org/v1/gonum/stat"
)

// RefreshAggregates rebuilds the cached per-grid aggregate for every
// gridpoint with a primary station: tmean over the window and the
// precipitation total. Gridpoints whose station has no data get a
// placeholder row so reads can tell "missing" from "unknown".
func (p *Pipeline) RefreshAggregates(ctx context.Context, asOf time.Time, windowDays int) error {
	primaries, err := p.store.PrimaryStationMappings(ctx)
	if err != nil {
		return fmt.Errorf("listing primary stations: %w", err)
	}

	windowStart := asOf.AddDate(0, 0, -windowDays)

	for _, m := range primaries {
		rows, err := p.store.DailySummaries(ctx, m.StationID, &windowStart, &asOf)
		if err != nil {
			return fmt.Errorf("reading summaries for %s: %w", m.StationID, err)
		}

		agg := &database.CachedGridAgg{GridID: m.GridID, AsOf: asOf}

		var means []float64
		var prcpTotal float64
		sawPrcp := false
		for _, r := range rows {
			if r.TmaxC != nil && r.TminC != nil {
				means = append(means, (*r.TmaxC+*r.TminC)/2)
			}
			if r.PrcpMm != nil {
				prcpTotal += *r.PrcpMm
				sawPrcp = true
			}
		}
		if len(means) > 0 {
			tmean := stat.Mean(means, nil)
			agg.TmeanC = &tmean
		}
		if sawPrcp {
			agg.Prcp30dMm = &prcpTotal
		}

		if err := p.store.UpsertCachedAgg(ctx, agg); err != nil {
			return fmt.Errorf("upserting aggregate for %s: %w", m.GridID, err)
		}

		if agg.TmeanC == nil && agg.Prcp30dMm == nil {
			p.logger.Debugw("no observation data in window, placeholder aggregate written",
				"grid_id", m.GridID, "station_id", m.StationID, "as_of", asOf.Format("2006-01-02"))
		}
	}
	return nil
}

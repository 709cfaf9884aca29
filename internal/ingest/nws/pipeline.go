// Package nws ingests gridpoints, hourly forecasts, and alerts from the
// National Weather Service into the store.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nwsclient "github.com/weatherdepot/weatherdepot/internal/clients/nws"
	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/ingestlog"
	"go.uber.org/zap"
)

// Pipeline runs the three NWS job families against the ingest store.
type Pipeline struct {
	store   *database.Store
	client  *nwsclient.Client
	journal *ingestlog.Journal
	logger  *zap.SugaredLogger
}

// NewPipeline wires the NWS ingest jobs.
func NewPipeline(store *database.Store, client *nwsclient.Client, journal *ingestlog.Journal, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{store: store, client: client, journal: journal, logger: logger}
}

// GridIDFor derives the canonical grid identifier.
func GridIDFor(office string, gridX, gridY int) string {
	return fmt.Sprintf("%s:%d,%d", office, gridX, gridY)
}

// RefreshGridpoints resolves each tracked point to its gridpoint and
// upserts it. A tracked point that fails to resolve fails that item, not
// the run.
func (p *Pipeline) RefreshGridpoints(ctx context.Context, run *ingestlog.Run) error {
	points, err := p.store.ListTrackedPoints(ctx)
	if err != nil {
		return fmt.Errorf("listing tracked points: %w", err)
	}

	for _, tp := range points {
		if err := p.refreshOne(ctx, tp); err != nil {
			p.logger.Errorw("gridpoint refresh failed", "lat", tp.Lat, "lon", tp.Lon, "error", err)
			run.RecordItemFailure()
			continue
		}
		run.RecordItemSuccess()
	}
	return nil
}

func (p *Pipeline) refreshOne(ctx context.Context, tp database.TrackedPoint) error {
	resp, err := p.client.Points(ctx, tp.Lat, tp.Lon)
	if err != nil {
		return err
	}
	props := resp.Properties
	if props.ForecastHourly == "" && props.ForecastGridData == "" {
		return fmt.Errorf("points response for %.4f,%.4f has no forecast URLs", tp.Lat, tp.Lon)
	}

	now := time.Now()
	gp := &database.Gridpoint{
		GridID:              GridIDFor(props.GridID, props.GridX, props.GridY),
		Office:              props.GridID,
		GridX:               props.GridX,
		GridY:               props.GridY,
		Lat:                 tp.Lat,
		Lon:                 tp.Lon,
		ForecastGridDataURL: props.ForecastGridData,
		ForecastHourlyURL:   props.ForecastHourly,
		LastRefreshedAt:     &now,
	}
	return p.store.UpsertGridpoint(ctx, gp)
}

// IngestHourly downloads and stores the hourly forecast for every
// gridpoint that has a stored hourly URL.
func (p *Pipeline) IngestHourly(ctx context.Context, run *ingestlog.Run) error {
	grids, err := p.store.AllGridpoints(ctx)
	if err != nil {
		return fmt.Errorf("listing gridpoints: %w", err)
	}

	for _, gp := range grids {
		if gp.ForecastHourlyURL == "" {
			continue
		}
		n, err := p.IngestHourlyForGrid(ctx, gp.GridID, gp.ForecastHourlyURL)
		if err != nil {
			p.logger.Errorw("hourly forecast ingest failed", "grid_id", gp.GridID, "error", err)
			run.RecordItemFailure()
			continue
		}
		p.logger.Debugw("hourly forecast ingested", "grid_id", gp.GridID, "periods", n)
		run.RecordItemSuccess()
	}
	return nil
}

// IngestHourlyForGrid fetches one grid's hourly forecast and upserts its
// periods. Also used by the read API's live fallback path.
func (p *Pipeline) IngestHourlyForGrid(ctx context.Context, gridID, hourlyURL string) (int, error) {
	resp, _, err := p.client.ForecastHourly(ctx, hourlyURL)
	if err != nil {
		return 0, err
	}
	rows := NormalizePeriods(gridID, resp)
	if err := p.store.UpsertHourlyForecasts(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// NormalizePeriods converts raw NWS periods into stored rows: Celsius,
// m/s, compass degrees, and probabilities in [0, 1].
func NormalizePeriods(gridID string, resp *nwsclient.HourlyForecastResponse) []database.HourlyForecast {
	now := time.Now()
	rows := make([]database.HourlyForecast, 0, len(resp.Properties.Periods))
	for _, period := range resp.Properties.Periods {
		row := database.HourlyForecast{
			GridID:        gridID,
			StartTime:     period.StartTime,
			EndTime:       period.EndTime,
			ShortForecast: period.ShortForecast,
			IssuedAt:      resp.Properties.UpdateTime,
			IngestedAt:    now,
		}

		tempC := temperatureToCelsius(period.Temperature, period.TemperatureUnit)
		row.TemperatureC = &tempC

		if mps, ok := windSpeedToMps(period.WindSpeed); ok {
			row.WindSpeedMps = &mps
		}
		if gust, ok := windSpeedToMps(period.WindGust); ok {
			row.WindGustMps = &gust
		}
		if deg, ok := windDirectionDegrees(period.WindDirection); ok {
			row.WindDirDeg = &deg
		}
		if period.ProbabilityOfPrecipitation.Value != nil {
			prob := precipProbability(*period.ProbabilityOfPrecipitation.Value)
			row.PrecipProb = &prob
		}
		if period.RelativeHumidity.Value != nil {
			rh := *period.RelativeHumidity.Value
			row.RelativeHumidity = &rh
		}

		if raw, err := json.Marshal(period); err == nil {
			row.RawJSON.Set(raw)
		}

		rows = append(rows, row)
	}
	return rows
}

// IngestAlerts pulls active alerts for every tracked point.
func (p *Pipeline) IngestAlerts(ctx context.Context, run *ingestlog.Run) error {
	points, err := p.store.ListTrackedPoints(ctx)
	if err != nil {
		return fmt.Errorf("listing tracked points: %w", err)
	}

	for _, tp := range points {
		resp, err := p.client.ActiveAlertsForPoint(ctx, tp.Lat, tp.Lon)
		if err != nil {
			p.logger.Errorw("alert fetch failed", "lat", tp.Lat, "lon", tp.Lon, "error", err)
			run.RecordItemFailure()
			continue
		}

		itemFailed := false
		for _, feature := range resp.Features {
			if err := p.upsertAlert(ctx, feature); err != nil {
				p.logger.Errorw("alert upsert failed", "alert_id", feature.ID, "error", err)
				itemFailed = true
			}
		}
		if itemFailed {
			run.RecordItemFailure()
		} else {
			run.RecordItemSuccess()
		}
	}
	return nil
}

func (p *Pipeline) upsertAlert(ctx context.Context, feature nwsclient.AlertFeature) error {
	props := feature.Properties
	alertID := props.ID
	if alertID == "" {
		alertID = feature.ID
	}
	if alertID == "" {
		return fmt.Errorf("alert feature has no id")
	}

	alert := &database.Alert{
		AlertID:     alertID,
		Event:       props.Event,
		Severity:    props.Severity,
		Certainty:   props.Certainty,
		Urgency:     props.Urgency,
		Headline:    props.Headline,
		Description: props.Description,
		Instruction: props.Instruction,
		Effective:   props.Effective,
		Onset:       props.Onset,
		Expires:     props.Expires,
		Ends:        props.Ends,
		Status:      props.Status,
		MessageType: props.MessageType,
		AreaDesc:    props.AreaDesc,
	}
	if raw, err := json.Marshal(feature); err == nil {
		alert.RawJSON.Set(raw)
	}

	var geom []byte
	if len(feature.Geometry) > 0 && string(feature.Geometry) != "null" {
		geom = feature.Geometry
	}
	return p.store.UpsertAlert(ctx, alert, geom)
}

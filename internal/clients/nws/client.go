// Package nws wraps the National Weather Service API.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Upstream is the name this client registers with the request fabric.
const Upstream = "NWS"

const requestTimeout = 30 * time.Second

// Client calls the NWS API through the shared request fabric.
type Client struct {
	baseURL   string
	userAgent string
	do        func(ctx context.Context, method, url string) ([]byte, error)
}

// Doer executes one fabric call; satisfied by a closure over
// fabric.Registry.Do in the app wiring.
type Doer func(ctx context.Context, upstream, method, url string, headers map[string]string, body []byte, timeout time.Duration) ([]byte, error)

// NewClient creates an NWS client. userAgent is required by the upstream.
func NewClient(baseURL, userAgent string, doer Doer) *Client {
	c := &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
	}
	c.do = func(ctx context.Context, method, url string) ([]byte, error) {
		headers := map[string]string{
			"User-Agent": c.userAgent,
			"Accept":     "application/geo+json",
		}
		return doer(ctx, Upstream, method, url, headers, nil, requestTimeout)
	}
	return c
}

// PointsResponse is the /points/{lat},{lon} document.
type PointsResponse struct {
	Properties struct {
		GridID           string `json:"gridId"`
		GridX            int    `json:"gridX"`
		GridY            int    `json:"gridY"`
		ForecastGridData string `json:"forecastGridData"`
		ForecastHourly   string `json:"forecastHourly"`
	} `json:"properties"`
}

// QuantValue is NWS's {unitCode, value} wrapper; value may be null.
type QuantValue struct {
	UnitCode string   `json:"unitCode"`
	Value    *float64 `json:"value"`
}

// HourlyPeriod is one period of the hourly forecast.
type HourlyPeriod struct {
	Number                     int        `json:"number"`
	StartTime                  time.Time  `json:"startTime"`
	EndTime                    time.Time  `json:"endTime"`
	Temperature                float64    `json:"temperature"`
	TemperatureUnit            string     `json:"temperatureUnit"`
	WindSpeed                  string     `json:"windSpeed"`
	WindGust                   string     `json:"windGust"`
	WindDirection              string     `json:"windDirection"`
	ProbabilityOfPrecipitation QuantValue `json:"probabilityOfPrecipitation"`
	RelativeHumidity           QuantValue `json:"relativeHumidity"`
	ShortForecast              string     `json:"shortForecast"`
}

// HourlyForecastResponse is the gridpoint hourly forecast document.
type HourlyForecastResponse struct {
	Properties struct {
		UpdateTime *time.Time     `json:"updateTime"`
		Periods    []HourlyPeriod `json:"periods"`
	} `json:"properties"`
}

// AlertFeature is one feature of the active-alerts collection. Geometry
// is kept raw; the store converts it to a spatial column.
type AlertFeature struct {
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties struct {
		ID          string     `json:"id"`
		Event       string     `json:"event"`
		Severity    string     `json:"severity"`
		Certainty   string     `json:"certainty"`
		Urgency     string     `json:"urgency"`
		Headline    string     `json:"headline"`
		Description string     `json:"description"`
		Instruction string     `json:"instruction"`
		Effective   *time.Time `json:"effective"`
		Onset       *time.Time `json:"onset"`
		Expires     *time.Time `json:"expires"`
		Ends        *time.Time `json:"ends"`
		Status      string     `json:"status"`
		MessageType string     `json:"messageType"`
		AreaDesc    string     `json:"areaDesc"`
	} `json:"properties"`
}

// AlertsResponse is the /alerts/active collection.
type AlertsResponse struct {
	Features []AlertFeature `json:"features"`
}

// Points resolves a lat/lon to its forecast gridpoint.
func (c *Client) Points(ctx context.Context, lat, lon float64) (*PointsResponse, error) {
	url := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)
	body, err := c.do(ctx, "GET", url)
	if err != nil {
		return nil, err
	}
	var resp PointsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode points response: %w", err)
	}
	if resp.Properties.GridID == "" {
		return nil, fmt.Errorf("points response missing gridId for %.4f,%.4f", lat, lon)
	}
	return &resp, nil
}

// ForecastHourly fetches an hourly forecast from the URL the points
// endpoint returned.
func (c *Client) ForecastHourly(ctx context.Context, forecastURL string) (*HourlyForecastResponse, []byte, error) {
	body, err := c.do(ctx, "GET", forecastURL)
	if err != nil {
		return nil, nil, err
	}
	var resp HourlyForecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode hourly forecast response: %w", err)
	}
	return &resp, body, nil
}

// ActiveAlertsForPoint fetches active alerts covering a point.
func (c *Client) ActiveAlertsForPoint(ctx context.Context, lat, lon float64) (*AlertsResponse, error) {
	url := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, lat, lon)
	body, err := c.do(ctx, "GET", url)
	if err != nil {
		return nil, err
	}
	var resp AlertsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode alerts response: %w", err)
	}
	return &resp, nil
}

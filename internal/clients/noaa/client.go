// Package noaa wraps the NOAA Climate Data Online v2 API.
package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/geo"
)

// Upstream is the name this client registers with the request fabric.
const Upstream = "NOAA"

const (
	requestTimeout = 60 * time.Second

	// DailyPageLimit is the CDO page size used by the backfill.
	DailyPageLimit = 250
)

// Doer executes one fabric call.
type Doer func(ctx context.Context, upstream, method, url string, headers map[string]string, body []byte, timeout time.Duration) ([]byte, error)

// Client calls the CDO API through the shared request fabric.
type Client struct {
	baseURL string
	token   string
	do      func(ctx context.Context, url string) ([]byte, error)
}

// NewClient creates a CDO client; token is sent on every request.
func NewClient(baseURL, token string, doer Doer) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
	}
	c.do = func(ctx context.Context, u string) ([]byte, error) {
		headers := map[string]string{"token": c.token}
		return doer(ctx, Upstream, "GET", u, headers, nil, requestTimeout)
	}
	return c
}

// ResultSet is CDO's pagination metadata.
type ResultSet struct {
	Offset int `json:"offset"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
}

// StationResult is one station from the /stations endpoint.
type StationResult struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Elevation    *float64 `json:"elevation"`
	DataCoverage float64  `json:"datacoverage"`
	MinDate      string   `json:"mindate"`
	MaxDate      string   `json:"maxdate"`
}

type stationsResponse struct {
	Metadata struct {
		ResultSet ResultSet `json:"resultset"`
	} `json:"metadata"`
	Results []StationResult `json:"results"`
}

// DailyRecord is one flat (date, datatype, value) observation row.
// Requests send units=metric, so values arrive already scaled (Celsius,
// millimetres); only raw local CSV files carry tenths.
type DailyRecord struct {
	Date     string  `json:"date"`
	Datatype string  `json:"datatype"`
	Station  string  `json:"station"`
	Value    float64 `json:"value"`
}

type dailyResponse struct {
	Metadata struct {
		ResultSet ResultSet `json:"resultset"`
	} `json:"metadata"`
	Results []DailyRecord `json:"results"`
}

// StationsNear finds GHCND stations around a point. The radius becomes a
// lat/lon extent; results are sorted by data coverage upstream.
func (c *Client) StationsNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]StationResult, error) {
	minLat, minLon, maxLat, maxLon := geo.ExtentFromRadius(lat, lon, radiusKm)

	v := url.Values{}
	v.Set("datasetid", "GHCND")
	v.Set("extent", fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", minLat, minLon, maxLat, maxLon))
	v.Set("sortfield", "datacoverage")
	v.Set("sortorder", "desc")
	v.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, c.baseURL+"/stations?"+v.Encode())
	if err != nil {
		return nil, err
	}
	var resp stationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stations response: %w", err)
	}
	return resp.Results, nil
}

// DailyGHCND fetches one page of daily observations for a station.
// Returns the rows plus the resultset so callers can paginate until
// offset+limit > count.
func (c *Client) DailyGHCND(ctx context.Context, stationID string, startDate, endDate time.Time, limit, offset int) ([]DailyRecord, ResultSet, error) {
	v := url.Values{}
	v.Set("datasetid", "GHCND")
	v.Set("stationid", stationID)
	v.Set("startdate", startDate.Format("2006-01-02"))
	v.Set("enddate", endDate.Format("2006-01-02"))
	v.Set("datatypeid", "TMAX,TMIN,PRCP")
	v.Set("units", "metric")
	v.Set("limit", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(offset))

	body, err := c.do(ctx, c.baseURL+"/data?"+v.Encode())
	if err != nil {
		return nil, ResultSet{}, err
	}
	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, ResultSet{}, fmt.Errorf("failed to decode daily data response: %w", err)
	}
	return resp.Results, resp.Metadata.ResultSet, nil
}

// DailyGHCNDAll paginates DailyGHCND over the full range.
func (c *Client) DailyGHCNDAll(ctx context.Context, stationID string, startDate, endDate time.Time) ([]DailyRecord, error) {
	var all []DailyRecord
	offset := 0
	for {
		rows, rs, err := c.DailyGHCND(ctx, stationID, startDate, endDate, DailyPageLimit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if rs.Count == 0 || offset+DailyPageLimit > rs.Count {
			break
		}
		offset += DailyPageLimit
	}
	return all, nil
}

// Package rainfall derives historical precipitation features from the
// Open-Meteo archive API, standing in for IMD gridded data until that is
// directly available.
package rainfall

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
)

// Fallback constants: Kerala long-term averages used when the archive is
// unreachable.
const (
	DefaultAnnualMM      = 2000.0
	DefaultMonsoonMM     = 1500.0
	DefaultPostMonsoonMM = 500.0
	DefaultExtremeEvents = 5
)

// ExtremeDayThresholdMM is the daily precipitation above which a day counts
// as an extreme rainfall event.
const ExtremeDayThresholdMM = 100.0

// Season selects the months aggregated by SeasonalRainfall.
type Season string

const (
	SeasonMonsoon     Season = "monsoon"      // June through September
	SeasonPostMonsoon Season = "post-monsoon" // October through December
)

// Sample is a rainfall-derived value with a degraded-value flag.
type Sample struct {
	Value    float64
	Fallback bool
}

// Client fetches archived daily precipitation series.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	cache      *cache.Cache
	ttl        time.Duration
	now        func() time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the archive URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithCacheTTL sets the cache expiry; rainfall aggregates default to 7 days.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client backed by the given cache.
func New(store *cache.Cache, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://archive-api.open-meteo.com/v1/archive",
		limiter:    rate.NewLimiter(2, 1),
		cache:      store,
		ttl:        7 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnnualRainfall returns the average annual rainfall in mm over the given
// number of trailing years.
func (c *Client) AnnualRainfall(ctx context.Context, coord geo.Coordinate, years int) Sample {
	key := cache.Key("rainfall_annual", coord.Lat, coord.Lon, years)
	if v, ok := cache.Lookup[float64](c.cache, key, c.ttl); ok {
		return Sample{Value: v}
	}

	series, err := c.fetchDaily(ctx, coord, years)
	if err != nil {
		zap.L().Warn("rainfall: annual fetch failed, using fallback", zap.Error(err))
		return Sample{Value: DefaultAnnualMM, Fallback: true}
	}

	var total float64
	for _, d := range series {
		total += d.mm
	}
	avg := total / float64(years)

	c.cache.Put(key, avg)
	return Sample{Value: avg}
}

// SeasonalRainfall returns the average per-season rainfall in mm over the
// trailing five years for the given season.
func (c *Client) SeasonalRainfall(ctx context.Context, coord geo.Coordinate, season Season) Sample {
	months := map[time.Month]bool{time.June: true, time.July: true, time.August: true, time.September: true}
	fallback := DefaultMonsoonMM
	if season == SeasonPostMonsoon {
		months = map[time.Month]bool{time.October: true, time.November: true, time.December: true}
		fallback = DefaultPostMonsoonMM
	}

	key := cache.Key("rainfall_seasonal", coord.Lat, coord.Lon, string(season))
	if v, ok := cache.Lookup[float64](c.cache, key, c.ttl); ok {
		return Sample{Value: v}
	}

	const seasonYears = 5
	series, err := c.fetchDaily(ctx, coord, seasonYears)
	if err != nil {
		zap.L().Warn("rainfall: seasonal fetch failed, using fallback", zap.Error(err))
		return Sample{Value: fallback, Fallback: true}
	}

	var total float64
	for _, d := range series {
		if months[d.date.Month()] {
			total += d.mm
		}
	}
	avg := total / seasonYears

	c.cache.Put(key, avg)
	return Sample{Value: avg}
}

// ExtremeEvents counts days exceeding ExtremeDayThresholdMM over the given
// number of trailing years.
func (c *Client) ExtremeEvents(ctx context.Context, coord geo.Coordinate, years int) (int, bool) {
	key := cache.Key("rainfall_extreme", coord.Lat, coord.Lon, years)
	if v, ok := cache.Lookup[int](c.cache, key, c.ttl); ok {
		return v, false
	}

	series, err := c.fetchDaily(ctx, coord, years)
	if err != nil {
		zap.L().Warn("rainfall: extreme-event fetch failed, using fallback", zap.Error(err))
		return DefaultExtremeEvents, true
	}

	count := 0
	for _, d := range series {
		if d.mm > ExtremeDayThresholdMM {
			count++
		}
	}

	c.cache.Put(key, count)
	return count, false
}

type dailyPoint struct {
	date time.Time
	mm   float64
}

// archiveResponse is the Open-Meteo archive payload; precipitation values
// may be null for gap days.
type archiveResponse struct {
	Daily struct {
		Time             []string   `json:"time"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

func (c *Client) fetchDaily(ctx context.Context, coord geo.Coordinate, years int) ([]dailyPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rainfall: rate limit")
	}

	end := c.now()
	start := end.AddDate(-years, 0, 0)

	params := url.Values{
		"latitude":   {strconv.FormatFloat(coord.Lat, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(coord.Lon, 'f', -1, 64)},
		"start_date": {start.Format("2006-01-02")},
		"end_date":   {end.Format("2006-01-02")},
		"daily":      {"precipitation_sum"},
		"timezone":   {"Asia/Kolkata"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "rainfall: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "rainfall: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("rainfall: archive returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rainfall: read body")
	}

	var parsed archiveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "rainfall: parse response")
	}

	series := make([]dailyPoint, 0, len(parsed.Daily.Time))
	for i, ds := range parsed.Daily.Time {
		if i >= len(parsed.Daily.PrecipitationSum) || parsed.Daily.PrecipitationSum[i] == nil {
			continue
		}
		date, perr := time.Parse("2006-01-02", ds)
		if perr != nil {
			continue
		}
		series = append(series, dailyPoint{date: date, mm: *parsed.Daily.PrecipitationSum[i]})
	}

	return series, nil
}

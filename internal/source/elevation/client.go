// Package elevation resolves terrain elevation via the Open-Meteo elevation
// API, with batching, per-point retry, and a fixed fallback so the pipeline
// never fails on elevation unavailability.
package elevation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
)

// DefaultElevation is substituted when the provider is unreachable.
// 50 m is a mid-range value for the Kerala lowland/midland transition.
const DefaultElevation = 50.0

const sourceName = "elevation"

// Sample is an elevation reading. Fallback marks a degraded value so
// callers and tests can tell a real reading from the substitute constant.
type Sample struct {
	Meters   float64
	Fallback bool
}

// Client fetches elevations from Open-Meteo.
type Client struct {
	httpClient *http.Client
	baseURL    string
	batchSize  int
	limiter    *rate.Limiter
	cache      *cache.Cache
	ttl        time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the provider URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithBatchSize sets the max coordinates per request.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithRateLimit sets the requests-per-second courtesy limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithCacheTTL sets the cache expiry. Elevation is time-invariant for
// practical purposes, so the default is 30 days.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// New creates a Client backed by the given cache.
func New(store *cache.Cache, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.open-meteo.com/v1/elevation",
		batchSize:  100,
		limiter:    rate.NewLimiter(5, 1),
		cache:      store,
		ttl:        30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func coordKey(c geo.Coordinate) string {
	return cache.Key(sourceName, c.Lat, c.Lon)
}

// Elevation returns the elevation at a coordinate. Provider failure yields
// the fallback constant; it is never cached, so a later call can recover.
func (c *Client) Elevation(ctx context.Context, coord geo.Coordinate) Sample {
	key := coordKey(coord)
	if v, ok := cache.Lookup[float64](c.cache, key, c.ttl); ok {
		return Sample{Meters: v}
	}

	values, err := c.fetch(ctx, []geo.Coordinate{coord})
	if err != nil {
		zap.L().Warn("elevation: single fetch failed, using fallback",
			zap.Float64("lat", coord.Lat),
			zap.Float64("lon", coord.Lon),
			zap.Error(err),
		)
		return Sample{Meters: DefaultElevation, Fallback: true}
	}

	c.cache.Put(key, values[0])
	return Sample{Meters: values[0]}
}

// ElevationBatch resolves many coordinates in ceil(n/batchSize) requests.
// A failed batch degrades to per-point fetches; a coordinate that still
// fails gets the fallback constant. Results are positionally aligned with
// the input and identical to what Elevation returns for the same coordinate.
func (c *Client) ElevationBatch(ctx context.Context, coords []geo.Coordinate) []Sample {
	samples := make([]Sample, len(coords))

	var pending []int
	for i, coord := range coords {
		if v, ok := cache.Lookup[float64](c.cache, coordKey(coord), c.ttl); ok {
			samples[i] = Sample{Meters: v}
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += c.batchSize {
		end := min(start+c.batchSize, len(pending))
		chunk := pending[start:end]

		chunkCoords := make([]geo.Coordinate, len(chunk))
		for j, idx := range chunk {
			chunkCoords[j] = coords[idx]
		}

		values, err := c.fetch(ctx, chunkCoords)
		if err == nil {
			for j, idx := range chunk {
				samples[idx] = Sample{Meters: values[j]}
				c.cache.Put(coordKey(coords[idx]), values[j])
			}
			continue
		}

		zap.L().Warn("elevation: batch failed, retrying per point",
			zap.Int("size", len(chunk)),
			zap.Error(err),
		)
		for _, idx := range chunk {
			samples[idx] = c.Elevation(ctx, coords[idx])
		}
	}

	return samples
}

// elevationResponse is the Open-Meteo elevation API payload.
type elevationResponse struct {
	Elevation []float64 `json:"elevation"`
}

// fetch performs one provider round-trip for up to batchSize coordinates.
func (c *Client) fetch(ctx context.Context, coords []geo.Coordinate) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "elevation: rate limit")
	}

	lats := make([]string, len(coords))
	lons := make([]string, len(coords))
	for i, coord := range coords {
		lats[i] = strconv.FormatFloat(coord.Lat, 'f', -1, 64)
		lons[i] = strconv.FormatFloat(coord.Lon, 'f', -1, 64)
	}

	params := url.Values{
		"latitude":  {strings.Join(lats, ",")},
		"longitude": {strings.Join(lons, ",")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "elevation: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "elevation: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		// 414 means too many points in one call; the caller's per-point
		// retry path handles it the same as any other failure.
		return nil, eris.Errorf("elevation: provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "elevation: read body")
	}

	var parsed elevationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "elevation: parse response")
	}

	if len(parsed.Elevation) != len(coords) {
		return nil, eris.Errorf("elevation: got %d values for %d coordinates", len(parsed.Elevation), len(coords))
	}

	return parsed.Elevation, nil
}

package waterway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/geoio"
)

// DefaultOverpassURL is the public Overpass API interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassClient downloads waterway geometry for a bounding box. Intended
// for one-shot bulk fetches persisted to a local file, not per-sample
// queries.
type OverpassClient struct {
	httpClient *http.Client
	baseURL    string
}

// OverpassOption configures an OverpassClient.
type OverpassOption func(*OverpassClient)

// WithOverpassURL overrides the Overpass endpoint.
func WithOverpassURL(u string) OverpassOption {
	return func(o *OverpassClient) { o.baseURL = u }
}

// WithOverpassHTTPClient overrides the HTTP client.
func WithOverpassHTTPClient(c *http.Client) OverpassOption {
	return func(o *OverpassClient) { o.httpClient = c }
}

// NewOverpassClient creates a client with a long timeout; bulk Overpass
// queries over a state-sized bbox routinely take tens of seconds.
func NewOverpassClient(opts ...OverpassOption) *OverpassClient {
	o := &OverpassClient{
		httpClient: &http.Client{Timeout: 180 * time.Second},
		baseURL:    DefaultOverpassURL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type overpassResponse struct {
	Elements []struct {
		Type     string            `json:"type"`
		Tags     map[string]string `json:"tags"`
		Geometry []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"geometry"`
	} `json:"elements"`
}

// FetchWaterways downloads river, stream, and canal ways inside the bbox as
// line features tagged with their OSM name and waterway type.
func (o *OverpassClient) FetchWaterways(ctx context.Context, bbox geo.BBox) ([]geoio.Feature, error) {
	query := fmt.Sprintf(`[out:json][timeout:120];
(
  way["waterway"="river"](%[1]f,%[2]f,%[3]f,%[4]f);
  way["waterway"="stream"](%[1]f,%[2]f,%[3]f,%[4]f);
  way["waterway"="canal"](%[1]f,%[2]f,%[3]f,%[4]f);
);
out geom;`, bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon)

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("overpass: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}

	features := make([]geoio.Feature, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		if el.Type != "way" || len(el.Geometry) < 2 {
			continue
		}
		flat := make([]float64, 0, len(el.Geometry)*2)
		for _, node := range el.Geometry {
			flat = append(flat, node.Lon, node.Lat)
		}
		features = append(features, geoio.Feature{
			Geometry: geom.NewLineStringFlat(geom.XY, flat),
			Properties: map[string]any{
				"name":     el.Tags["name"],
				"waterway": el.Tags["waterway"],
			},
		})
	}

	zap.L().Info("overpass: fetched waterways",
		zap.Int("elements", len(parsed.Elements)),
		zap.Int("features", len(features)),
	)
	return features, nil
}

// DownloadTo fetches waterways for the bbox and persists them as a GeoJSON
// file usable by Load.
func (o *OverpassClient) DownloadTo(ctx context.Context, bbox geo.BBox, path string) (int, error) {
	features, err := o.FetchWaterways(ctx, bbox)
	if err != nil {
		return 0, err
	}
	if err := geoio.WriteGeoJSON(path, features); err != nil {
		return 0, err
	}
	return len(features), nil
}

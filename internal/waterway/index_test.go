package waterway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/geoio"
)

func lineFeature(coords ...float64) geoio.Feature {
	return geoio.Feature{
		Geometry:   geom.NewLineStringFlat(geom.XY, coords),
		Properties: map[string]any{"waterway": "river"},
	}
}

func TestNearestDistance(t *testing.T) {
	// North-south river along lon 76.30 near Kochi.
	idx := New([]geoio.Feature{
		lineFeature(76.30, 9.80, 76.30, 10.10),
	}, cache.New())
	require.Equal(t, 1, idx.Lines())

	// Kochi sits about 0.03 degrees of longitude west of the line.
	got := idx.NearestDistance(geo.Coordinate{Lat: 9.93, Lon: 76.27})
	require.False(t, got.Fallback)
	assert.InDelta(t, 3.29, got.KM, 0.1)
}

func TestNearestDistanceEmptyWindowFallback(t *testing.T) {
	idx := New([]geoio.Feature{
		lineFeature(76.30, 9.80, 76.30, 10.10),
	}, cache.New())

	// Far northern Kerala, over a degree from the only line.
	got := idx.NearestDistance(geo.Coordinate{Lat: 12.5, Lon: 75.0})
	assert.True(t, got.Fallback)
	assert.Equal(t, FallbackDistanceKM, got.KM)
}

func TestNearestDistanceEmptyIndex(t *testing.T) {
	idx := New(nil, cache.New())

	got := idx.NearestDistance(geo.Coordinate{Lat: 9.93, Lon: 76.27})
	assert.True(t, got.Fallback)
	assert.Equal(t, FallbackDistanceKM, got.KM)
	assert.Equal(t, 0.0, idx.DrainageDensity(geo.Coordinate{Lat: 9.93, Lon: 76.27}, 1.0))
}

func TestNearestDistanceSegmentNotVertex(t *testing.T) {
	// The point faces the middle of a long segment; vertex distance would
	// be far larger than segment distance.
	idx := New([]geoio.Feature{
		lineFeature(76.0, 9.0, 76.0, 11.0),
	}, cache.New())

	got := idx.NearestDistance(geo.Coordinate{Lat: 10.0, Lon: 76.1})
	require.False(t, got.Fallback)
	assert.InDelta(t, 10.97, got.KM, 0.15)
}

func TestDrainageDensity(t *testing.T) {
	// Roughly 0.1 degrees of dense channel near the point: about 11 km,
	// clipped to saturation.
	idx := New([]geoio.Feature{
		lineFeature(76.30, 9.90, 76.30, 10.00),
	}, cache.New())

	dense := idx.DrainageDensity(geo.Coordinate{Lat: 9.95, Lon: 76.30}, 2.0)
	assert.Equal(t, 1.0, dense)

	// Short segment well within the radius: about 1.1 km of channel.
	idx = New([]geoio.Feature{
		lineFeature(76.30, 9.95, 76.30, 9.96),
	}, cache.New())
	sparse := idx.DrainageDensity(geo.Coordinate{Lat: 9.955, Lon: 76.30}, 2.0)
	assert.InDelta(t, 0.11, sparse, 0.02)
}

func TestDrainageDensityExcludesDistantSegments(t *testing.T) {
	idx := New([]geoio.Feature{
		lineFeature(76.30, 9.95, 76.30, 9.96),
		lineFeature(75.00, 12.00, 75.00, 12.50),
	}, cache.New())

	near := idx.DrainageDensity(geo.Coordinate{Lat: 9.955, Lon: 76.30}, 2.0)
	assert.Less(t, near, 0.2, "distant segment must not contribute")
	assert.Greater(t, near, 0.0)
}

func TestNearestWaterBody(t *testing.T) {
	square := geom.NewPolygonFlat(geom.XY, []float64{
		76.30, 9.90,
		76.40, 9.90,
		76.40, 10.00,
		76.30, 10.00,
		76.30, 9.90,
	}, []int{10})
	idx := New([]geoio.Feature{{Geometry: square, Properties: map[string]any{"water": "lake"}}}, cache.New())

	got := idx.NearestWaterBody(geo.Coordinate{Lat: 9.95, Lon: 76.27})
	require.False(t, got.Fallback)
	assert.InDelta(t, 3.29, got.KM, 0.1)

	far := idx.NearestWaterBody(geo.Coordinate{Lat: 12.5, Lon: 75.0})
	assert.True(t, far.Fallback)
	assert.Equal(t, FallbackDistanceKM, far.KM)
}

func TestLoadRoundTripThroughGeoJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waterways.geojson")

	features := []geoio.Feature{
		lineFeature(76.30, 9.80, 76.30, 10.10),
		lineFeature(76.50, 9.50, 76.55, 9.60, 76.60, 9.70),
	}
	require.NoError(t, geoio.WriteGeoJSON(path, features))

	idx, err := Load(path, cache.New())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Lines())

	got := idx.NearestDistance(geo.Coordinate{Lat: 9.93, Lon: 76.27})
	assert.False(t, got.Fallback)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.geojson"), cache.New())
	require.Error(t, err)
}

func TestOverpassFetchWaterways(t *testing.T) {
	body := `{
		"elements": [
			{
				"type": "way",
				"tags": {"waterway": "river", "name": "Periyar"},
				"geometry": [
					{"lat": 10.0, "lon": 76.3},
					{"lat": 10.1, "lon": 76.35}
				]
			},
			{
				"type": "way",
				"tags": {"waterway": "stream"},
				"geometry": [{"lat": 9.9, "lon": 76.2}]
			}
		]
	}`
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("data")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewOverpassClient(WithOverpassURL(srv.URL), WithOverpassHTTPClient(srv.Client()))
	features, err := client.FetchWaterways(context.Background(), geo.KeralaBBox)
	require.NoError(t, err)

	// Single-node ways are dropped.
	require.Len(t, features, 1)
	assert.Equal(t, "Periyar", features[0].Properties["name"])
	assert.Contains(t, gotQuery, `"waterway"="river"`)
	assert.Contains(t, gotQuery, "8.2")
}

func TestOverpassDownloadTo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[{"type":"way","tags":{"waterway":"river"},"geometry":[{"lat":10.0,"lon":76.3},{"lat":10.1,"lon":76.35}]}]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.geojson")
	client := NewOverpassClient(WithOverpassURL(srv.URL), WithOverpassHTTPClient(srv.Client()))
	n, err := client.DownloadTo(context.Background(), geo.KeralaBBox, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestOverpassErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too busy", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOverpassClient(WithOverpassURL(srv.URL), WithOverpassHTTPClient(srv.Client()))
	_, err := client.FetchWaterways(context.Background(), geo.KeralaBBox)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/classify"
	"github.com/safeland/floodrisk-cli/internal/enrich"
	"github.com/safeland/floodrisk-cli/internal/floodhist"
	"github.com/safeland/floodrisk-cli/internal/geoio"
	"github.com/safeland/floodrisk-cli/internal/source/elevation"
	"github.com/safeland/floodrisk-cli/internal/waterway"
	"github.com/safeland/floodrisk-cli/internal/zone"
)

// testEnv wires a full stack against a fake 5m-elevation provider, a 2019
// flood footprint over Kochi, one river, and one lake.
func testEnv(t *testing.T) *env {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := len(strings.Split(r.URL.Query().Get("latitude"), ","))
		elevs := make([]float64, n)
		for i := range elevs {
			elevs[i] = 5.0
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"elevation": elevs}))
	}))
	t.Cleanup(srv.Close)

	store := cache.New()
	elev := elevation.New(store, elevation.WithBaseURL(srv.URL), elevation.WithHTTPClient(srv.Client()))
	slope := elevation.NewSlopeEstimator(elev, store)
	zones := zone.New(elev, store)

	footprint := geom.NewPolygonFlat(geom.XY, []float64{
		76.1, 9.8,
		76.4, 9.8,
		76.4, 10.0,
		76.1, 10.0,
		76.1, 9.8,
	}, []int{10})
	floods := floodhist.New(nil, elev, zones, store, floodhist.WithFootprints(map[int][]geom.T{
		2019: {footprint},
	}))

	waterways := waterway.New([]geoio.Feature{
		{
			Geometry:   geom.NewLineStringFlat(geom.XY, []float64{76.30, 9.80, 76.30, 10.10}),
			Properties: map[string]any{"waterway": "river"},
		},
		{
			Geometry: geom.NewPolygonFlat(geom.XY, []float64{
				76.24, 9.93,
				76.25, 9.93,
				76.25, 9.94,
				76.24, 9.94,
				76.24, 9.93,
			}, []int{10}),
			Properties: map[string]any{"natural": "water"},
		},
	}, store)

	return &env{
		Cache:      store,
		Elevation:  elev,
		Zones:      zones,
		Waterways:  waterways,
		Floods:     floods,
		Assembler:  enrich.NewAssembler(elev, slope, zones, waterways, floods),
		Classifier: classify.Heuristic{},
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux := newServeMux(testEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPredictKochi(t *testing.T) {
	mux := newServeMux(testEnv(t))

	body := `{"latitude": 9.93, "longitude": 76.27}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// One flood year on low coastal ground.
	assert.Equal(t, classify.RiskMedium, resp.Risk)
	assert.Equal(t, 5, resp.Zone.Level)
	assert.Equal(t, "Very High", resp.Zone.Label)
	assert.Equal(t, 1.0, resp.Features["flood_history_count"])
	assert.Equal(t, 1.0, resp.Features["flooded_2019"])
	assert.Equal(t, 5.0, resp.Features["elevation"])
	assert.Empty(t, resp.Degraded)
}

func TestZonesKochi(t *testing.T) {
	mux := newServeMux(testEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/zones?latitude=9.93&longitude=76.27", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp zonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 5, resp.Level)
	assert.Equal(t, "Very High", resp.Label)
	assert.Equal(t, "#DD2C00", resp.Color)
	assert.Equal(t, "Not recommended for construction", resp.Recommendation)
	assert.True(t, resp.FloodProne)
	assert.InDelta(t, 3.29, resp.RiverDistanceKM, 0.1)
	assert.InDelta(t, 2.19, resp.WaterBodyDistanceKM, 0.1)

	// No rainfall client configured; the field stays out of the payload.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "monsoon_rainfall_mm")
}

func TestZonesBadRequests(t *testing.T) {
	mux := newServeMux(testEnv(t))

	for _, query := range []string{
		"",
		"latitude=9.93",
		"longitude=76.27",
		"latitude=nine&longitude=76.27",
		"latitude=99.0&longitude=76.27",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/zones?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", query)
	}
}

func TestPredictMissingFields(t *testing.T) {
	mux := newServeMux(testEnv(t))

	for _, body := range []string{
		`{}`,
		`{"latitude": 9.93}`,
		`{"longitude": 76.27}`,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestPredictInvalidCoordinates(t *testing.T) {
	mux := newServeMux(testEnv(t))

	body := `{"latitude": 123.0, "longitude": 76.27}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictMalformedBody(t *testing.T) {
	mux := newServeMux(testEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

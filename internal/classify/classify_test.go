package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeland/floodrisk-cli/internal/enrich"
)

func TestFromCount(t *testing.T) {
	tests := []struct {
		count int
		want  Risk
	}{
		{0, RiskLow},
		{1, RiskMedium},
		{2, RiskHigh},
		{3, RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromCount(tt.count), "count %d", tt.count)
	}
}

func TestHeuristicPredict(t *testing.T) {
	var h Heuristic

	pred, err := h.Predict(context.Background(), enrich.FeatureVector{FloodHistoryCount: 1})
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, pred.Risk)

	var total float64
	for _, p := range pred.Confidence {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, pred.Confidence[RiskMedium], pred.Confidence[RiskHigh])
	assert.Greater(t, pred.Confidence[RiskMedium], pred.Confidence[RiskLow])
}

func kochiVector() enrich.FeatureVector {
	return enrich.FeatureVector{
		Latitude:          9.93,
		Longitude:         76.27,
		Flooded:           []int{0, 1, 0},
		FloodHistoryCount: 1,
		KSDMAZone:         5,
		Elevation:         5,
		RiverDistance:     3.3,
		DrainageDensity:   0.2,
		Known:             true,
	}
}

func TestHTTPClassifierPredict(t *testing.T) {
	var gotPayload map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"flood_risk": "Medium",
			"confidence": map[string]float64{"Low": 0.2, "Medium": 0.7, "High": 0.1},
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, enrich.SchemaV1, []int{2018, 2019, 2021}, WithClient(srv.Client()))
	pred, err := c.Predict(context.Background(), kochiVector())
	require.NoError(t, err)

	assert.Equal(t, RiskMedium, pred.Risk)
	assert.Equal(t, 0.7, pred.Confidence[RiskMedium])

	assert.Equal(t, 9.93, gotPayload["latitude"])
	assert.Equal(t, 1.0, gotPayload["flooded_2019"])
	assert.Equal(t, 5.0, gotPayload["ksdma_zone"])
	assert.NotContains(t, gotPayload, "annual_rainfall")
}

func TestHTTPClassifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, enrich.SchemaV1, []int{2018, 2019, 2021}, WithClient(srv.Client()))
	_, err := c.Predict(context.Background(), kochiVector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClassifierUnknownLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"flood_risk": "Catastrophic"})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, enrich.SchemaV1, []int{2018, 2019, 2021}, WithClient(srv.Client()))
	_, err := c.Predict(context.Background(), kochiVector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Catastrophic")
}

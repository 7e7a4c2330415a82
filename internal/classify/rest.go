package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/safeland/floodrisk-cli/internal/enrich"
)

// HTTPClassifier calls an external model server speaking the prediction
// contract: POST named feature columns, receive a risk label with
// per-class confidence.
type HTTPClassifier struct {
	endpoint      string
	client        *http.Client
	schemaVersion int
	years         []int
}

// HTTPOption configures an HTTPClassifier.
type HTTPOption func(*HTTPClassifier)

// WithTimeout overrides the request timeout (default 10s).
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClassifier) { c.client.Timeout = d }
}

// WithClient overrides the HTTP client.
func WithClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClassifier) { c.client = hc }
}

// NewHTTPClassifier creates a client for the model server at endpoint. The
// schema version and flood years must match what the model was trained on.
func NewHTTPClassifier(endpoint string, schemaVersion int, years []int, opts ...HTTPOption) *HTTPClassifier {
	c := &HTTPClassifier{
		endpoint:      endpoint,
		client:        &http.Client{Timeout: 10 * time.Second},
		schemaVersion: schemaVersion,
		years:         years,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type modelResponse struct {
	Risk       Risk               `json:"flood_risk"`
	Confidence map[string]float64 `json:"confidence"`
}

// Predict implements Classifier.
func (c *HTTPClassifier) Predict(ctx context.Context, vec enrich.FeatureVector) (Prediction, error) {
	cols := enrich.Columns(c.schemaVersion, c.years)
	vals := append([]float64{vec.Latitude, vec.Longitude}, vec.Values(c.schemaVersion)...)
	if len(cols) != len(vals) {
		return Prediction{}, eris.Errorf("classify: %d columns for %d values", len(cols), len(vals))
	}
	payload := make(map[string]float64, len(cols))
	for i, col := range cols {
		payload[col] = vals[i]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classify: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classify: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classify: model server request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Prediction{}, eris.Errorf("classify: model server returned status %d", resp.StatusCode)
	}

	var parsed modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Prediction{}, eris.Wrap(err, "classify: decode model response")
	}
	if !parsed.Risk.Valid() {
		return Prediction{}, eris.Errorf("classify: model server returned unknown label %q", parsed.Risk)
	}

	pred := Prediction{Risk: parsed.Risk, Confidence: make(map[Risk]float64, len(parsed.Confidence))}
	for label, p := range parsed.Confidence {
		pred.Confidence[Risk(label)] = p
	}
	return pred, nil
}

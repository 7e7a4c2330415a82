// Package classify turns feature vectors into flood risk labels, either by
// calling an external model server or with a flood-count heuristic.
package classify

import (
	"context"

	"github.com/safeland/floodrisk-cli/internal/enrich"
)

// Risk is a flood risk label.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// Risks lists the labels in ascending severity.
var Risks = []Risk{RiskLow, RiskMedium, RiskHigh}

// Valid reports whether r is a known label.
func (r Risk) Valid() bool {
	for _, known := range Risks {
		if r == known {
			return true
		}
	}
	return false
}

// FromCount maps a multi-year flood count to a risk label. The same rule
// labels training data, so heuristic serving and trained-model serving
// stay consistent.
func FromCount(count int) Risk {
	switch {
	case count >= 2:
		return RiskHigh
	case count == 1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Prediction is a labeled risk with its per-class confidence distribution.
type Prediction struct {
	Risk       Risk             `json:"flood_risk"`
	Confidence map[Risk]float64 `json:"confidence"`
}

// Classifier predicts risk for an assembled feature vector.
type Classifier interface {
	Predict(ctx context.Context, vec enrich.FeatureVector) (Prediction, error)
}

// Heuristic classifies purely from the flood history count with a fixed
// confidence spread. Used when no model server is configured.
type Heuristic struct{}

var heuristicConfidence = map[Risk]map[Risk]float64{
	RiskHigh:   {RiskHigh: 0.75, RiskMedium: 0.20, RiskLow: 0.05},
	RiskMedium: {RiskMedium: 0.60, RiskHigh: 0.25, RiskLow: 0.15},
	RiskLow:    {RiskLow: 0.80, RiskMedium: 0.15, RiskHigh: 0.05},
}

// Predict implements Classifier. It never fails.
func (Heuristic) Predict(_ context.Context, vec enrich.FeatureVector) (Prediction, error) {
	risk := FromCount(vec.FloodHistoryCount)
	conf := make(map[Risk]float64, len(Risks))
	for k, v := range heuristicConfidence[risk] {
		conf[k] = v
	}
	return Prediction{Risk: risk, Confidence: conf}, nil
}

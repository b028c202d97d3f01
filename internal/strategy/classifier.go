package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Classifier is the external probability model. PredictProba returns
// [p_loss, p_win] for a vector in FeatureNames order.
type Classifier interface {
	PredictProba(features []float64) ([2]float64, error)
}

// LogisticModel is a logistic regression exported as JSON:
//
//	{"features": [...], "coefficients": [...], "intercept": 0.0}
type LogisticModel struct {
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// LoadLogisticModel reads a model file and checks it against FeatureNames.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *LogisticModel) validate() error {
	if len(m.Features) != len(FeatureNames) || len(m.Coefficients) != len(FeatureNames) {
		return fmt.Errorf("model expects %d features and %d coefficients, want %d",
			len(m.Features), len(m.Coefficients), len(FeatureNames))
	}
	for i, name := range FeatureNames {
		if m.Features[i] != name {
			return fmt.Errorf("model feature %d is %q, want %q", i, m.Features[i], name)
		}
	}
	return nil
}

// PredictProba implements Classifier.
func (m *LogisticModel) PredictProba(features []float64) ([2]float64, error) {
	if len(features) != len(m.Coefficients) {
		return [2]float64{}, fmt.Errorf("got %d features, want %d", len(features), len(m.Coefficients))
	}
	z := m.Intercept
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return [2]float64{}, fmt.Errorf("feature %s is not finite", FeatureNames[i])
		}
		z += m.Coefficients[i] * v
	}
	p := sigmoid(z)
	return [2]float64{1 - p, p}, nil
}

func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

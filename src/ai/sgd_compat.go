package ai

import (
	"encoding/json"
	"math"
)

// SGDCompat mirrors the behavior of an external SGD classifier with
// averaged weights and a decaying learning rate. It is selected by tag and
// is not required to score identically to OnlineLR.
type SGDCompat struct {
	Dim        int       `json:"dim"`
	Eta0       float64   `json:"eta0"`
	Alpha      float64   `json:"alpha"`
	Bias       float64   `json:"bias"`
	Weights    []float64 `json:"w"`
	AvgWeights []float64 `json:"avg_w"`
	AvgBias    float64   `json:"avg_bias"`
	T          int       `json:"t"`
	Version    int       `json:"version"`
}

func NewSGDCompat(dim int) *SGDCompat {
	return &SGDCompat{
		Dim:        dim,
		Eta0:       0.1,
		Alpha:      1e-4,
		Weights:    make([]float64, dim),
		AvgWeights: make([]float64, dim),
		Version:    1,
	}
}

func (m *SGDCompat) Impl() string { return ImplSGDCompat }

// Score uses the averaged iterate, which is what the reference classifier
// exposes after fitting.
func (m *SGDCompat) Score(features []float64) float64 {
	if len(features) == 0 {
		return 0.5
	}
	w, b := m.Weights, m.Bias
	if m.T > 0 {
		w, b = m.AvgWeights, m.AvgBias
	}

	z := b
	n := len(features)
	if len(w) < n {
		n = len(w)
	}
	for i := 0; i < n; i++ {
		z += w[i] * features[i]
	}
	return sigmoid(z)
}

func (m *SGDCompat) PartialFit(features []float64, label int) {
	y := 0.0
	if label == 1 {
		y = 1.0
	}

	m.T++
	eta := m.Eta0 / math.Sqrt(float64(m.T))

	z := m.Bias
	n := len(features)
	if len(m.Weights) < n {
		n = len(m.Weights)
	}
	for i := 0; i < n; i++ {
		z += m.Weights[i] * features[i]
	}
	err := sigmoid(z) - y

	for i := 0; i < n; i++ {
		m.Weights[i] -= eta * (err*features[i] + m.Alpha*m.Weights[i])
	}
	m.Bias -= eta * err

	// running average of the iterates
	k := float64(m.T)
	for i := range m.AvgWeights {
		m.AvgWeights[i] += (m.Weights[i] - m.AvgWeights[i]) / k
	}
	m.AvgBias += (m.Bias - m.AvgBias) / k
}

func (m *SGDCompat) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

func (m *SGDCompat) Deserialize(blob []byte) error {
	var loaded SGDCompat
	if err := json.Unmarshal(blob, &loaded); err != nil {
		return err
	}
	if loaded.Dim <= 0 {
		loaded.Dim = m.Dim
	}
	if len(loaded.Weights) != loaded.Dim {
		w := make([]float64, loaded.Dim)
		copy(w, loaded.Weights)
		loaded.Weights = w
	}
	if len(loaded.AvgWeights) != loaded.Dim {
		w := make([]float64, loaded.Dim)
		copy(w, loaded.AvgWeights)
		loaded.AvgWeights = w
	}
	if loaded.Eta0 == 0 {
		loaded.Eta0 = 0.1
	}
	*m = loaded
	return nil
}

package ai

import (
	"encoding/json"
	"math"
)

// OnlineLR is a lightweight online logistic regression trained by
// per-sample SGD. State survives restarts via Serialize/Deserialize into
// the ai_models blob.
type OnlineLR struct {
	Dim     int       `json:"dim"`
	LR      float64   `json:"lr"`
	L2      float64   `json:"l2"`
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"w"`
	Seen    int       `json:"seen"`
	Version int       `json:"version"`
}

func NewOnlineLR(dim int) *OnlineLR {
	return &OnlineLR{
		Dim:     dim,
		LR:      0.05,
		L2:      1e-6,
		Weights: make([]float64, dim),
		Version: 1,
	}
}

func (m *OnlineLR) Impl() string { return ImplOnlineLR }

// sigmoid, numerically stable on both tails
func sigmoid(z float64) float64 {
	if z >= 0 {
		ez := math.Exp(-z)
		return 1.0 / (1.0 + ez)
	}
	ez := math.Exp(z)
	return ez / (1.0 + ez)
}

func (m *OnlineLR) Score(features []float64) float64 {
	if len(features) == 0 {
		return 0.5
	}
	z := m.Bias
	n := len(features)
	if len(m.Weights) < n {
		n = len(m.Weights)
	}
	for i := 0; i < n; i++ {
		z += m.Weights[i] * features[i]
	}
	return sigmoid(z)
}

func (m *OnlineLR) PartialFit(features []float64, label int) {
	y := 0.0
	if label == 1 {
		y = 1.0
	}
	p := m.Score(features)
	err := p - y

	n := len(features)
	if len(m.Weights) < n {
		n = len(m.Weights)
	}
	for i := 0; i < n; i++ {
		m.Weights[i] -= m.LR * (err*features[i] + m.L2*m.Weights[i])
	}
	m.Bias -= m.LR * err
	m.Seen++
}

func (m *OnlineLR) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

func (m *OnlineLR) Deserialize(blob []byte) error {
	var loaded OnlineLR
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
	if loaded.LR == 0 {
		loaded.LR = 0.05
	}
	*m = loaded
	return nil
}

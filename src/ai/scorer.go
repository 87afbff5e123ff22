package ai

import "fmt"

// Implementation tags stored in the model row and the AI_MODEL_IMPL config.
const (
	ImplOnlineLR  = "online_lr"
	ImplSGDCompat = "sgd_compat"
)

// ColdStartScore is used until a trained model row exists. Cold-start
// decisions never enable leverage amplification.
const ColdStartScore = 50.0

// Scorer is the narrow learner capability set. Score returns a probability
// in [0,1]; callers scale it to the 0-100 score range themselves.
type Scorer interface {
	Impl() string
	Score(features []float64) float64
	PartialFit(features []float64, label int)
	Serialize() ([]byte, error)
	Deserialize(blob []byte) error
}

// NewScorer constructs a fresh scorer by implementation tag.
func NewScorer(impl string, dim int) (Scorer, error) {
	switch impl {
	case ImplOnlineLR:
		return NewOnlineLR(dim), nil
	case ImplSGDCompat:
		return NewSGDCompat(dim), nil
	default:
		return nil, fmt.Errorf("unknown ai model impl %q", impl)
	}
}

// ScoreToPercent maps a probability to the 0-100 score range.
func ScoreToPercent(prob float64) float64 {
	return prob * 100
}

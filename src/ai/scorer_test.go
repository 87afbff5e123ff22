package ai

import (
	"testing"
)

func trainOn(s Scorer, rounds int) {
	// separable toy problem: label follows the sign of the first feature
	pos := []float64{1.0, 0.5, 0.2}
	neg := []float64{-1.0, -0.5, -0.2}
	for i := 0; i < rounds; i++ {
		s.PartialFit(pos, 1)
		s.PartialFit(neg, 0)
	}
}

func TestOnlineLRLearnsSeparableProblem(t *testing.T) {
	m := NewOnlineLR(3)
	trainOn(m, 200)

	if p := m.Score([]float64{1.0, 0.5, 0.2}); p < 0.8 {
		t.Fatalf("positive sample should score high after training, got %.3f", p)
	}
	if p := m.Score([]float64{-1.0, -0.5, -0.2}); p > 0.2 {
		t.Fatalf("negative sample should score low after training, got %.3f", p)
	}
}

func TestSGDCompatLearnsSeparableProblem(t *testing.T) {
	m := NewSGDCompat(3)
	trainOn(m, 400)

	if p := m.Score([]float64{1.0, 0.5, 0.2}); p < 0.7 {
		t.Fatalf("positive sample should score high after training, got %.3f", p)
	}
	if p := m.Score([]float64{-1.0, -0.5, -0.2}); p > 0.3 {
		t.Fatalf("negative sample should score low after training, got %.3f", p)
	}
}

func TestUntrainedScorerIsNeutral(t *testing.T) {
	for _, impl := range []string{ImplOnlineLR, ImplSGDCompat} {
		s, err := NewScorer(impl, 3)
		if err != nil {
			t.Fatalf("construct %s: %v", impl, err)
		}
		if p := s.Score([]float64{0.3, -0.1, 0.5}); p != 0.5 {
			t.Fatalf("%s: untrained scorer should be neutral, got %.3f", impl, p)
		}
	}
}

func TestSerializeRoundTripPreservesScores(t *testing.T) {
	for _, impl := range []string{ImplOnlineLR, ImplSGDCompat} {
		s, err := NewScorer(impl, 3)
		if err != nil {
			t.Fatalf("construct %s: %v", impl, err)
		}
		trainOn(s, 100)

		blob, err := s.Serialize()
		if err != nil {
			t.Fatalf("%s: serialize: %v", impl, err)
		}

		restored, err := NewScorer(impl, 3)
		if err != nil {
			t.Fatalf("construct %s: %v", impl, err)
		}
		if err := restored.Deserialize(blob); err != nil {
			t.Fatalf("%s: deserialize: %v", impl, err)
		}

		probe := []float64{0.7, 0.1, -0.3}
		if a, b := s.Score(probe), restored.Score(probe); a != b {
			t.Fatalf("%s: round trip changed score: %.6f vs %.6f", impl, a, b)
		}
	}
}

func TestUnknownImplRejected(t *testing.T) {
	if _, err := NewScorer("gradient_boost", 3); err == nil {
		t.Fatalf("unknown implementation tags must be rejected")
	}
}

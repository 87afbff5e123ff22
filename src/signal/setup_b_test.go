package signal

import (
	"strings"
	"testing"

	"alphasniper/src/model"
)

func passingBars() (curr, prev model.FeatureSet) {
	prev = model.FeatureSet{
		Adx: 26, DiPlus: 22, DiMinus: 14,
		SqueezeOn: true, Momentum: -0.5, VolRatio: 1.2,
	}
	curr = model.FeatureSet{
		Adx: 28, DiPlus: 24, DiMinus: 12,
		SqueezeOn: false, Momentum: 0.3, VolRatio: 2.1,
	}
	return curr, prev
}

func TestSetupBAllConditionsMet(t *testing.T) {
	curr, prev := passingBars()
	d := CheckSetupBLong(curr, prev, 60, DefaultThresholds())

	if !d.Enter {
		t.Fatalf("expected entry, got rejection: %s", d.Reason)
	}
	if d.ReasonCode != model.ReasonSetupBSqueezeRelease {
		t.Fatalf("expected reason code %s, got %s", model.ReasonSetupBSqueezeRelease, d.ReasonCode)
	}
	if !strings.Contains(d.Reason, "ADX=28.0") {
		t.Fatalf("reason should carry the indicator snapshot, got %q", d.Reason)
	}
}

func TestSetupBRejections(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name   string
		mutate func(curr, prev *model.FeatureSet, score *float64)
	}{
		{"weak adx", func(c, p *model.FeatureSet, s *float64) { c.Adx = 20 }},
		{"di inverted", func(c, p *model.FeatureSet, s *float64) { c.DiPlus, c.DiMinus = 10, 20 }},
		{"no squeeze release: still on", func(c, p *model.FeatureSet, s *float64) { c.SqueezeOn = true }},
		{"no squeeze release: never on", func(c, p *model.FeatureSet, s *float64) { p.SqueezeOn = false }},
		{"momentum stayed negative", func(c, p *model.FeatureSet, s *float64) { c.Momentum = -0.1 }},
		{"momentum already positive", func(c, p *model.FeatureSet, s *float64) { p.Momentum = 0.2 }},
		{"thin volume", func(c, p *model.FeatureSet, s *float64) { c.VolRatio = 1.1 }},
		{"low ai score", func(c, p *model.FeatureSet, s *float64) { *s = 40 }},
	}

	for _, tt := range tests {
		curr, prev := passingBars()
		score := 60.0
		tt.mutate(&curr, &prev, &score)

		if d := CheckSetupBLong(curr, prev, score, th); d.Enter {
			t.Fatalf("%s: expected rejection, got entry", tt.name)
		}
	}
}

func TestSetupBColdStartDefaultScorePasses(t *testing.T) {
	curr, prev := passingBars()
	// cold start scores at the default 50, which meets the minimum exactly
	if d := CheckSetupBLong(curr, prev, 50, DefaultThresholds()); !d.Enter {
		t.Fatalf("default cold-start score of 50 should pass the 50 threshold: %s", d.Reason)
	}
}

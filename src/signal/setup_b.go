package signal

import (
	"fmt"

	"alphasniper/src/model"
)

// Thresholds are the config-driven knobs of the Setup B template.
type Thresholds struct {
	AdxMin      float64
	VolRatioMin float64
	AiScoreMin  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{AdxMin: 25, VolRatioMin: 1.5, AiScoreMin: 50}
}

// Decision is the outcome of evaluating one closed bar.
type Decision struct {
	Enter      bool
	ReasonCode string
	Reason     string
}

// CheckSetupBLong evaluates the long-entry template on the just-closed bar.
// All conditions must hold:
//   - trend: ADX >= AdxMin and +DI > -DI
//   - squeeze released on this bar (prev on, curr off)
//   - momentum crossed from <= 0 to > 0
//   - vol_ratio >= VolRatioMin
//   - aiScore >= AiScoreMin
func CheckSetupBLong(curr, prev model.FeatureSet, aiScore float64, th Thresholds) Decision {
	if curr.Adx < th.AdxMin || curr.DiPlus <= curr.DiMinus {
		return Decision{Reason: "trend weak"}
	}

	if !(prev.SqueezeOn && !curr.SqueezeOn) {
		return Decision{Reason: "no squeeze release"}
	}

	if !(prev.Momentum <= 0 && curr.Momentum > 0) {
		return Decision{Reason: "no momentum flip"}
	}

	if curr.VolRatio < th.VolRatioMin {
		return Decision{Reason: fmt.Sprintf("low volume (ratio %.2f)", curr.VolRatio)}
	}

	if aiScore < th.AiScoreMin {
		return Decision{Reason: fmt.Sprintf("ai score %.1f below %.1f", aiScore, th.AiScoreMin)}
	}

	return Decision{
		Enter:      true,
		ReasonCode: model.ReasonSetupBSqueezeRelease,
		Reason: fmt.Sprintf("squeeze released, ADX=%.1f +DI=%.1f -DI=%.1f momentum %.4f->%.4f vol_ratio=%.2f ai=%.1f",
			curr.Adx, curr.DiPlus, curr.DiMinus, prev.Momentum, curr.Momentum, curr.VolRatio, aiScore),
	}
}

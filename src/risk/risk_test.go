package risk

import (
	"testing"

	"alphasniper/src/model"
)

func TestLeverageDecrementsUntilBudgetFits(t *testing.T) {
	// equity 500 -> margin 50, budget 15
	// stop dist 4%: lev 10 -> risk 20 (over), 9 -> 18, 8 -> 16, 7 -> 14 (fits)
	entry := 100.0
	stop := 96.0

	sizing, rejection := CalculatePositionSize(500, 60, entry, stop, 10, true)
	if rejection != nil {
		t.Fatalf("expected acceptance, got rejection: %s", rejection.Reason)
	}
	if sizing.Leverage != 7 {
		t.Fatalf("expected leverage to decrement to 7, got %d", sizing.Leverage)
	}
	if sizing.RiskAmount > 15.0 {
		t.Fatalf("accepted risk %.2f exceeds 3%% budget", sizing.RiskAmount)
	}
}

func TestRejectsWhenEvenLeverageOneIsOverBudget(t *testing.T) {
	// equity 500 -> margin 50, budget 15; stop dist 35% -> risk 17.5 at lev 1
	entry := 100.0
	stop := 65.0

	sizing, rejection := CalculatePositionSize(500, 60, entry, stop, 5, true)
	if sizing != nil {
		t.Fatalf("expected rejection, got sizing at leverage %d", sizing.Leverage)
	}
	if rejection == nil {
		t.Fatalf("expected a rejection")
	}
	if rejection.ReasonCode != model.ReasonRiskBudgetExceeded {
		t.Fatalf("expected %s, got %s", model.ReasonRiskBudgetExceeded, rejection.ReasonCode)
	}
}

func TestDynamicMarginFloorAndBoost(t *testing.T) {
	// small account: margin floors at 50 even though 10% of equity is 20
	sizing, rejection := CalculatePositionSize(200, 60, 100, 99, 1, true)
	if rejection != nil {
		t.Fatalf("unexpected rejection: %s", rejection.Reason)
	}
	if sizing.Margin != 50 {
		t.Fatalf("expected margin floor of 50, got %.2f", sizing.Margin)
	}

	// high AI score amplifies margin 1.2x
	sizing, rejection = CalculatePositionSize(10000, 90, 100, 99, 1, true)
	if rejection != nil {
		t.Fatalf("unexpected rejection: %s", rejection.Reason)
	}
	if sizing.Margin != 1200 {
		t.Fatalf("expected boosted margin 1200, got %.2f", sizing.Margin)
	}
}

func TestColdStartForbidsLeverageAmplification(t *testing.T) {
	// same high score, but amplification is not allowed during cold start
	sizing, rejection := CalculatePositionSize(10000, 90, 100, 99, 1, false)
	if rejection != nil {
		t.Fatalf("unexpected rejection: %s", rejection.Reason)
	}
	if sizing.Margin != 1000 {
		t.Fatalf("cold start must not boost margin, got %.2f", sizing.Margin)
	}
}

func TestInvalidStopRejected(t *testing.T) {
	_, rejection := CalculatePositionSize(500, 60, 100, 105, 5, true)
	if rejection == nil {
		t.Fatalf("stop above entry must be rejected for a long")
	}
}

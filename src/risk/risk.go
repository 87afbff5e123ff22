package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"alphasniper/src/model"
)

const (
	minMarginUSDT   = 50.0
	marginEquityPct = 0.10
	aiBoostScore    = 85.0
	aiBoostFactor   = 1.2
	maxRiskPct      = 0.03
	maxLeverage     = 20
)

// Sizing is the accepted risk decision for one entry.
type Sizing struct {
	Quantity   decimal.Decimal
	Leverage   int
	Margin     float64
	RiskAmount float64
	Reason     string
}

// Rejection explains why the risk budget refused the entry.
type Rejection struct {
	ReasonCode string
	Reason     string
}

// CalculatePositionSize applies the dynamic margin rule and the hard 3%
// risk budget.
//
// base_margin = max(50, equity * 0.10), boosted 1.2x when aiScore > 85.
// risk_amount = base_margin * leverage * stop_dist_pct. Starting from
// startLeverage the leverage is reduced by 1 until the risk amount fits
// inside 3% of equity; if it still does not fit at leverage 1 the entry is
// rejected with RISK_BUDGET_EXCEEDED.
//
// aiAmplifyAllowed is false during cold start, when the scorer runs on its
// default: the margin boost must never ride on a default score.
func CalculatePositionSize(equity, aiScore, entryPrice, stopPrice float64, startLeverage int, aiAmplifyAllowed bool) (*Sizing, *Rejection) {
	if entryPrice <= 0 {
		return nil, &Rejection{ReasonCode: "RISK_INVALID_PRICE", Reason: "entry price must be positive"}
	}

	priceDist := entryPrice - stopPrice
	if priceDist <= 0 {
		return nil, &Rejection{ReasonCode: "RISK_INVALID_STOP", Reason: "stop price must sit below entry for a long"}
	}
	stopDistPct := priceDist / entryPrice

	margin := equity * marginEquityPct
	if margin < minMarginUSDT {
		margin = minMarginUSDT
	}
	if aiAmplifyAllowed && aiScore > aiBoostScore {
		margin *= aiBoostFactor
	}

	budget := equity * maxRiskPct

	leverage := startLeverage
	if leverage > maxLeverage {
		leverage = maxLeverage
	}
	if leverage < 1 {
		leverage = 1
	}

	for {
		riskAmount := margin * float64(leverage) * stopDistPct
		if riskAmount <= budget {
			positionValue := margin * float64(leverage)
			qty := decimal.NewFromFloat(positionValue / entryPrice)
			return &Sizing{
				Quantity:   qty,
				Leverage:   leverage,
				Margin:     margin,
				RiskAmount: riskAmount,
				Reason: fmt.Sprintf("risk ok: margin=%.2f lev=%d stop_dist=%.4f risk=%.2f budget=%.2f",
					margin, leverage, stopDistPct, riskAmount, budget),
			}, nil
		}

		if leverage == 1 {
			return nil, &Rejection{
				ReasonCode: model.ReasonRiskBudgetExceeded,
				Reason: fmt.Sprintf("risk %.2f exceeds budget %.2f even at leverage 1 (margin=%.2f stop_dist=%.4f)",
					riskAmount, budget, margin, stopDistPct),
			}
		}
		leverage--
	}
}

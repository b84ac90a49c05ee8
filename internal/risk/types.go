// Package risk implements the portfolio analytics behind the risk MCP
// tools: return series construction, volatility and drawdown, historical
// VaR, concentration measures, the linear stress engine and the
// deterministic rebalance heuristic.
package risk

import (
	"math"

	"github.com/mosfin/analyst/internal/domain"
)

// RebalanceMode controls how portfolio weights evolve through time.
type RebalanceMode string

const (
	RebalanceBuyAndHold RebalanceMode = "buy_and_hold"
	RebalanceMonthly    RebalanceMode = "monthly"
)

// TradingDaysPerYear annualises daily volatility.
const TradingDaysPerYear = 252

// Aggregates carries the portfolio-level sensitivities used by the
// deterministic stress model.
type Aggregates struct {
	FixedIncomeDurationYears  float64 `json:"fixed_income_duration_years"`
	CreditSpreadDurationYears float64 `json:"credit_spread_duration_years"`
}

// VarConfig configures the historical VaR computation.
type VarConfig struct {
	Confidence  float64 `json:"confidence"`   // default 0.95
	HorizonDays float64 `json:"horizon_days"` // default 1
}

func (c VarConfig) withDefaults() VarConfig {
	if c.Confidence <= 0 || c.Confidence >= 1 {
		c.Confidence = 0.95
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 1
	}
	return c
}

// StressScenario is one deterministic linear shock. Shocks are fractions
// (−0.10 is a 10% drop); rates and credit moves are in basis points.
type StressScenario struct {
	Name          string  `json:"name"`
	EquityShock   float64 `json:"equity_shock"`
	FXShock       float64 `json:"fx_shock"`
	RatesShockBP  float64 `json:"rates_shock_bp"`
	CreditShockBP float64 `json:"credit_shock_bp"`
}

// CanonicalScenarios are the stress scenarios every report includes when
// the caller does not override them.
func CanonicalScenarios() []StressScenario {
	return []StressScenario{
		{Name: "base_case"},
		{Name: "equity_-10_fx_+20", EquityShock: -0.10, FXShock: 0.20},
		{Name: "rates_+300bp", RatesShockBP: 300},
		{Name: "credit_spreads_+150bp", CreditShockBP: 150},
	}
}

// StressResult is the outcome of one scenario applied to the portfolio.
type StressResult struct {
	Name             string   `json:"name"`
	PnLPct           float64  `json:"pnl_pct"`
	PnLValue         float64  `json:"pnl_value,omitempty"`
	CovenantBreaches []string `json:"covenant_breaches,omitempty"`
}

// CovenantLimits are optional thresholds checked against stress outcomes.
type CovenantLimits struct {
	MaxLossPct        float64 `json:"max_loss_pct,omitempty"`
	MinPortfolioValue float64 `json:"min_portfolio_value,omitempty"`
}

// Exposures are the factor loadings extracted from the position mix.
type Exposures struct {
	Equity      float64 `json:"equity"`
	FXForeign   float64 `json:"fx_foreign"`
	FixedIncome float64 `json:"fixed_income"`
	Credit      float64 `json:"credit"`
	Cash        float64 `json:"cash"`
}

// ComputeExposures derives factor loadings from positions. A position
// counts towards FXForeign when it is an fx-class asset or is denominated
// in a currency other than base.
func ComputeExposures(positions []domain.Position, baseCurrency string) Exposures {
	var e Exposures
	for _, p := range positions {
		switch p.AssetClass {
		case domain.AssetClassEquity:
			e.Equity += p.Weight
		case domain.AssetClassFixedIncome:
			e.FixedIncome += p.Weight
		case domain.AssetClassCredit:
			e.Credit += p.Weight
		case domain.AssetClassCash:
			e.Cash += p.Weight
		}
		if p.AssetClass == domain.AssetClassFX || (p.Currency != "" && baseCurrency != "" && p.Currency != baseCurrency) {
			e.FXForeign += p.Weight
		}
	}
	return e
}

// ValidatePortfolio checks the portfolio input invariants: at least one
// position, unique tickers, weights in [0,1] summing to 1 within
// tolerance.
func ValidatePortfolio(positions []domain.Position) error {
	if len(positions) == 0 {
		return domain.NewValidationError("positions", "at least one position is required")
	}
	seen := make(map[string]bool, len(positions))
	sum := 0.0
	for _, p := range positions {
		if p.Ticker == "" {
			return domain.NewValidationError("positions", "position with empty ticker")
		}
		if seen[p.Ticker] {
			return domain.NewValidationError("positions", "duplicate ticker %s", p.Ticker)
		}
		seen[p.Ticker] = true
		if p.Weight < 0 || p.Weight > 1 {
			return domain.NewValidationError("positions", "weight %.6f for %s outside [0,1]", p.Weight, p.Ticker)
		}
		sum += p.Weight
	}
	if math.Abs(sum-1) >= domain.WeightSumTolerance {
		return domain.NewValidationError("positions", "weights sum to %.6f, expected 1", sum)
	}
	return nil
}

package risk

import "fmt"

const bpPerUnit = 10000.0

// RunStressScenarios applies the deterministic linear shock model to the
// portfolio exposures. Per scenario:
//
//	ΔP/P = equity_shock·w_equity + fx_shock·w_fx_foreign
//	     − (rates_bp/10000)·D_fi·w_fi − (credit_bp/10000)·D_cs·w_credit
//
// pnl_value is filled when totalValue is positive; covenant breaches are
// checked when limits are supplied.
func RunStressScenarios(scenarios []StressScenario, exposures Exposures, aggregates Aggregates, totalValue float64, limits *CovenantLimits) []StressResult {
	if len(scenarios) == 0 {
		scenarios = CanonicalScenarios()
	}

	results := make([]StressResult, 0, len(scenarios))
	for _, s := range scenarios {
		pnl := s.EquityShock*exposures.Equity +
			s.FXShock*exposures.FXForeign -
			(s.RatesShockBP/bpPerUnit)*aggregates.FixedIncomeDurationYears*exposures.FixedIncome -
			(s.CreditShockBP/bpPerUnit)*aggregates.CreditSpreadDurationYears*exposures.Credit

		result := StressResult{Name: s.Name, PnLPct: pnl}
		if totalValue > 0 {
			result.PnLValue = pnl * totalValue
		}
		if limits != nil {
			result.CovenantBreaches = checkCovenants(pnl, totalValue, limits)
		}
		results = append(results, result)
	}
	return results
}

func checkCovenants(pnlPct, totalValue float64, limits *CovenantLimits) []string {
	var breaches []string
	if limits.MaxLossPct > 0 && -pnlPct > limits.MaxLossPct {
		breaches = append(breaches, fmt.Sprintf("loss %.2f%% exceeds max_loss_pct %.2f%%", -pnlPct*100, limits.MaxLossPct*100))
	}
	if limits.MinPortfolioValue > 0 && totalValue > 0 {
		stressed := totalValue * (1 + pnlPct)
		if stressed < limits.MinPortfolioValue {
			breaches = append(breaches, fmt.Sprintf("stressed value %.2f below min_portfolio_value %.2f", stressed, limits.MinPortfolioValue))
		}
	}
	return breaches
}

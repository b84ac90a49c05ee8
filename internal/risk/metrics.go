package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AnnualisedVolatility is std(R) · √252 over daily returns.
func AnnualisedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown returns the most negative peak-to-trough move of the equity
// curve, in (−1, 0]. The curve is normalised to start at 1, so that start
// counts as the initial peak and a decline from inception is a drawdown.
// A curve that never declines has drawdown 0.
func MaxDrawdown(equityCurve []float64) float64 {
	peak := 1.0
	maxDD := 0.0
	for _, e := range equityCurve {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := e/peak - 1
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// VarResult carries historical VaR and expected shortfall, both expressed
// as non-negative fractions of portfolio value.
type VarResult struct {
	Confidence  float64 `json:"confidence"`
	HorizonDays float64 `json:"horizon_days"`
	VaR         float64 `json:"var"`
	ES          float64 `json:"es"`
}

// VarLight computes historical-simulation VaR: the (1−c) quantile of the
// realised return series scaled by √h, and the expected shortfall as the
// mean of the tail beyond that quantile. Both are clamped so that
// VaR ≥ 0 and ES ≥ VaR hold for any input series.
func VarLight(returns []float64, cfg VarConfig) VarResult {
	cfg = cfg.withDefaults()
	result := VarResult{Confidence: cfg.Confidence, HorizonDays: cfg.HorizonDays}
	if len(returns) == 0 {
		return result
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	q := stat.Quantile(1-cfg.Confidence, stat.Empirical, sorted, nil)
	scale := math.Sqrt(cfg.HorizonDays)

	result.VaR = -q * scale
	if result.VaR < 0 {
		result.VaR = 0
	}

	tailSum, tailCount := 0.0, 0
	for _, r := range sorted {
		if r <= q {
			tailSum += r
			tailCount++
		}
	}
	if tailCount > 0 {
		result.ES = -(tailSum / float64(tailCount)) * scale
	}
	if result.ES < result.VaR {
		result.ES = result.VaR
	}
	return result
}

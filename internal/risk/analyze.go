package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/moex"
)

// fetchParallelism bounds concurrent provider calls per analysis.
const fetchParallelism = 4

// RiskPrefs are the flag thresholds. Zero values disable a check.
type RiskPrefs struct {
	MaxVarLight float64 `json:"max_var_light,omitempty"`
	MaxTop1Pct  float64 `json:"max_top1_pct,omitempty"`
	MaxHHI      float64 `json:"max_hhi,omitempty"`
}

// AnalyzeInput is the full input of analyze_portfolio_risk.
type AnalyzeInput struct {
	Positions           []domain.Position
	FromDate            time.Time
	ToDate              time.Time
	BaseCurrency        string
	Rebalance           RebalanceMode
	Aggregates          Aggregates
	StressScenarios     []StressScenario
	VarConfig           VarConfig
	TotalPortfolioValue float64
	CovenantLimits      *CovenantLimits
	RiskPrefs           *RiskPrefs
}

// InstrumentStats is the per-ticker block of the analysis output.
type InstrumentStats struct {
	Ticker      string  `json:"ticker"`
	Weight      float64 `json:"weight"`
	TotalReturn float64 `json:"total_return"`
	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Totals is the portfolio-level block of the analysis output.
type Totals struct {
	Value       float64 `json:"value,omitempty"`
	Return      float64 `json:"return"`
	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"max_drawdown"`
	VaR         float64 `json:"var"`
	ES          float64 `json:"es"`
}

// AnalyzeResult is the analyze_portfolio_risk output.
type AnalyzeResult struct {
	Totals          Totals            `json:"totals"`
	PerInstrument   []InstrumentStats `json:"per_instrument"`
	Concentrations  Concentrations    `json:"concentrations"`
	StressScenarios []StressResult    `json:"stress_scenarios"`
	VarDetail       VarResult         `json:"var_detail"`
	Flags           []string          `json:"flags,omitempty"`
	TradingDays     int               `json:"trading_days"`
}

// AnalyzePortfolio runs the full portfolio risk analysis: it fetches daily
// bars for every position, aligns them to the shared trading-day grid and
// derives returns, volatility, drawdown, concentrations, Var_light and
// stress P&L. The computation is idempotent: the same input produces
// bit-identical numbers because tickers are always processed in sorted
// order.
func AnalyzePortfolio(ctx context.Context, provider moex.Provider, in AnalyzeInput) (*AnalyzeResult, error) {
	if err := ValidatePortfolio(in.Positions); err != nil {
		return nil, err
	}
	if in.Rebalance == "" {
		in.Rebalance = RebalanceBuyAndHold
	}
	if in.Rebalance != RebalanceBuyAndHold && in.Rebalance != RebalanceMonthly {
		return nil, domain.NewValidationError("rebalance", "unknown rebalance mode %q", in.Rebalance)
	}

	series, err := fetchSeries(ctx, provider, in.Positions, in.FromDate, in.ToDate)
	if err != nil {
		return nil, err
	}

	aligned := AlignSeries(series)
	if len(aligned.Dates) < 2 {
		return nil, domain.NewError(domain.CategoryInvalidTicker,
			"insufficient overlapping trading days in %s..%s", in.FromDate.Format("2006-01-02"), in.ToDate.Format("2006-01-02"))
	}

	weights := make(map[string]float64, len(in.Positions))
	for _, p := range in.Positions {
		weights[p.Ticker] = p.Weight
	}

	portfolio := PortfolioReturns(aligned, weights, in.Rebalance)
	varResult := VarLight(portfolio.Returns, in.VarConfig)
	exposures := ComputeExposures(in.Positions, in.BaseCurrency)

	result := &AnalyzeResult{
		Totals: Totals{
			Value:       in.TotalPortfolioValue,
			Return:      TotalReturn(portfolio.Returns),
			Volatility:  AnnualisedVolatility(portfolio.Returns),
			MaxDrawdown: MaxDrawdown(portfolio.EquityCurve),
			VaR:         varResult.VaR,
			ES:          varResult.ES,
		},
		Concentrations:  ComputeConcentrations(in.Positions),
		StressScenarios: RunStressScenarios(in.StressScenarios, exposures, in.Aggregates, in.TotalPortfolioValue, in.CovenantLimits),
		VarDetail:       varResult,
		TradingDays:     len(aligned.Dates),
	}

	for _, ticker := range aligned.Tickers {
		returns := aligned.Returns[ticker]
		equity := make([]float64, 0, len(returns))
		value := 1.0
		for _, r := range returns {
			value *= 1 + r
			equity = append(equity, value)
		}
		result.PerInstrument = append(result.PerInstrument, InstrumentStats{
			Ticker:      ticker,
			Weight:      weights[ticker],
			TotalReturn: TotalReturn(returns),
			Volatility:  AnnualisedVolatility(returns),
			MaxDrawdown: MaxDrawdown(equity),
		})
	}

	result.Flags = computeFlags(result, in.RiskPrefs)
	return result, nil
}

func fetchSeries(ctx context.Context, provider moex.Provider, positions []domain.Position, from, to time.Time) (map[string][]domain.OHLCVBar, error) {
	tickers := make([]string, 0, len(positions))
	for _, p := range positions {
		tickers = append(tickers, p.Ticker)
	}
	sort.Strings(tickers)

	series := make(map[string][]domain.OHLCVBar, len(tickers))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fetchParallelism)

	results := make([][]domain.OHLCVBar, len(tickers))
	for i, ticker := range tickers {
		i, ticker := i, ticker
		group.Go(func() error {
			bars, err := provider.OHLCV(groupCtx, ticker, domain.DefaultBoard, from, to, domain.IntervalDay)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ticker, err)
			}
			results[i] = bars
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	for i, ticker := range tickers {
		series[ticker] = results[i]
	}
	return series, nil
}

func computeFlags(result *AnalyzeResult, prefs *RiskPrefs) []string {
	if prefs == nil {
		return nil
	}
	var flags []string
	if prefs.MaxTop1Pct > 0 && result.Concentrations.Top1Pct > prefs.MaxTop1Pct {
		flags = append(flags, fmt.Sprintf("top1 concentration %.1f%% exceeds %.1f%%", result.Concentrations.Top1Pct, prefs.MaxTop1Pct))
	}
	if prefs.MaxHHI > 0 && result.Concentrations.HHI > prefs.MaxHHI {
		flags = append(flags, fmt.Sprintf("HHI %.3f exceeds %.3f", result.Concentrations.HHI, prefs.MaxHHI))
	}
	if prefs.MaxVarLight > 0 && result.Totals.VaR > prefs.MaxVarLight {
		flags = append(flags, fmt.Sprintf("Var_light %.4f exceeds %.4f", result.Totals.VaR, prefs.MaxVarLight))
	}
	return flags
}

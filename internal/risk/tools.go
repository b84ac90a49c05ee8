package risk

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/mosfin/analyst/internal/config"
	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
	"github.com/mosfin/analyst/internal/moex"
)

// Tools binds the risk calculations and the market-data provider into MCP
// tool handlers.
type Tools struct {
	provider moex.Provider
	cfg      config.RiskConfig
}

// NewTools creates the risk tool set.
func NewTools(provider moex.Provider, cfg config.RiskConfig) *Tools {
	return &Tools{provider: provider, cfg: cfg}
}

// RegisterAll registers every risk tool on the given registry.
func (t *Tools) RegisterAll(registry *mcp.Registry) error {
	specs := []mcp.ToolSpec{
		{
			Name:        "analyze_portfolio_risk",
			Description: "Full portfolio risk analysis: returns, volatility, drawdown, VaR, concentrations and stress scenarios over MOEX daily bars.",
			InputSchema: analyzePortfolioSchema,
			CostRank:    3,
			Handler:     t.handleAnalyzePortfolio,
		},
		{
			Name:        "suggest_rebalance",
			Description: "Constraint-driven rebalance targets: caps single-position, issuer and asset-class concentration under a turnover budget.",
			InputSchema: suggestRebalanceSchema,
			CostRank:    1,
			Handler:     t.handleSuggestRebalance,
		},
		{
			Name:        "compute_correlation_matrix",
			Description: "Pairwise Pearson correlation matrix of daily returns on the shared trading-day grid.",
			InputSchema: correlationMatrixSchema,
			CostRank:    2,
			Handler:     t.handleCorrelationMatrix,
		},
		{
			Name:        "build_cfo_liquidity_report",
			Description: "CFO liquidity report: liquidity buckets, quick and short-term coverage ratios, stress scenarios with covenant checks.",
			InputSchema: liquidityReportSchema,
			CostRank:    1,
			Handler:     t.handleLiquidityReport,
		},
	}
	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// decodeArgs round-trips schema-validated arguments into a typed request.
func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return domain.NewValidationError("arguments", "encode arguments: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("arguments", "decode arguments: %v", err)
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "invalid date %q, expected YYYY-MM-DD", value)
	}
	return parsed, nil
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := parseDate("from_date", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate("to_date", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, domain.NewValidationError("to_date", "to_date must be after from_date")
	}
	return from, to, nil
}

type analyzePortfolioRequest struct {
	Positions           []domain.Position `json:"positions"`
	FromDate            string            `json:"from_date"`
	ToDate              string            `json:"to_date"`
	BaseCurrency        string            `json:"base_currency"`
	Rebalance           string            `json:"rebalance"`
	Aggregates          Aggregates        `json:"aggregates"`
	StressScenarios     []StressScenario  `json:"stress_scenarios"`
	VarConfig           VarConfig         `json:"var_config"`
	TotalPortfolioValue float64           `json:"total_portfolio_value"`
	CovenantLimits      *CovenantLimits   `json:"covenant_limits"`
	RiskPrefs           *RiskPrefs        `json:"risk_prefs"`
}

func (t *Tools) handleAnalyzePortfolio(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	var req analyzePortfolioRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, nil, err
	}
	if len(req.Positions) > t.cfg.MaxPortfolioTickers {
		return nil, nil, domain.NewError(domain.CategoryTooManyTickers,
			"portfolio has %d positions, limit is %d", len(req.Positions), t.cfg.MaxPortfolioTickers)
	}
	from, to, err := parseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, nil, err
	}

	result, err := AnalyzePortfolio(ctx, t.provider, AnalyzeInput{
		Positions:           req.Positions,
		FromDate:            from,
		ToDate:              to,
		BaseCurrency:        req.BaseCurrency,
		Rebalance:           RebalanceMode(req.Rebalance),
		Aggregates:          req.Aggregates,
		StressScenarios:     req.StressScenarios,
		VarConfig:           req.VarConfig,
		TotalPortfolioValue: req.TotalPortfolioValue,
		CovenantLimits:      req.CovenantLimits,
		RiskPrefs:           req.RiskPrefs,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics := map[string]any{
		"tickers":      len(req.Positions),
		"trading_days": result.TradingDays,
	}
	return result, metrics, nil
}

type suggestRebalanceRequest struct {
	Positions           []RebalancePosition `json:"positions"`
	RiskProfile         RiskProfile         `json:"risk_profile"`
	TotalPortfolioValue float64             `json:"total_portfolio_value"`
}

func (t *Tools) handleSuggestRebalance(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	var req suggestRebalanceRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, nil, err
	}
	if len(req.Positions) > t.cfg.MaxPortfolioTickers {
		return nil, nil, domain.NewError(domain.CategoryTooManyTickers,
			"portfolio has %d positions, limit is %d", len(req.Positions), t.cfg.MaxPortfolioTickers)
	}

	result, err := SuggestRebalance(req.Positions, req.RiskProfile, req.TotalPortfolioValue)
	if err != nil {
		return nil, nil, err
	}

	metrics := map[string]any{
		"tickers":  len(req.Positions),
		"trades":   len(result.Trades),
		"turnover": result.Summary.TotalTurnover,
	}
	return result, metrics, nil
}

type correlationMatrixRequest struct {
	Tickers  []string `json:"tickers"`
	FromDate string   `json:"from_date"`
	ToDate   string   `json:"to_date"`
	Board    string   `json:"board"`
}

func (t *Tools) handleCorrelationMatrix(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	var req correlationMatrixRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, nil, err
	}
	if len(req.Tickers) < 2 {
		return nil, nil, domain.NewValidationError("tickers", "at least two tickers are required")
	}
	if len(req.Tickers) > t.cfg.MaxCorrelationTickers {
		return nil, nil, domain.NewError(domain.CategoryTooManyTickers,
			"%d tickers requested, limit is %d", len(req.Tickers), t.cfg.MaxCorrelationTickers)
	}
	from, to, err := parseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, nil, err
	}
	board := req.Board
	if board == "" {
		board = domain.DefaultBoard
	}

	tickers := make([]string, len(req.Tickers))
	copy(tickers, req.Tickers)
	sort.Strings(tickers)

	series := make(map[string][]domain.OHLCVBar, len(tickers))
	for _, ticker := range tickers {
		if _, dup := series[ticker]; dup {
			return nil, nil, domain.NewValidationError("tickers", "duplicate ticker %s", ticker)
		}
		bars, err := t.provider.OHLCV(ctx, ticker, board, from, to, domain.IntervalDay)
		if err != nil {
			return nil, nil, err
		}
		series[ticker] = bars
	}

	matrix, err := ComputeCorrelationMatrix(AlignSeries(series))
	if err != nil {
		return nil, nil, err
	}

	metrics := map[string]any{
		"tickers":      len(tickers),
		"trading_days": matrix.Days,
	}
	return matrix, metrics, nil
}

type liquidityReportRequest struct {
	Positions            []domain.Position `json:"positions"`
	Aggregates           Aggregates        `json:"aggregates"`
	TotalPortfolioValue  float64           `json:"total_portfolio_value"`
	ShortTermLiabilities float64           `json:"short_term_liabilities"`
	CovenantLimits       *CovenantLimits   `json:"covenant_limits"`
	BaseCurrency         string            `json:"base_currency"`
}

func (t *Tools) handleLiquidityReport(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	var req liquidityReportRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, nil, err
	}
	if len(req.Positions) > t.cfg.MaxPortfolioTickers {
		return nil, nil, domain.NewError(domain.CategoryTooManyTickers,
			"portfolio has %d positions, limit is %d", len(req.Positions), t.cfg.MaxPortfolioTickers)
	}

	report, err := BuildLiquidityReport(req.Positions, req.Aggregates,
		req.TotalPortfolioValue, req.ShortTermLiabilities, req.CovenantLimits, req.BaseCurrency)
	if err != nil {
		return nil, nil, err
	}

	metrics := map[string]any{
		"tickers":         len(req.Positions),
		"recommendations": len(report.Recommendations),
	}
	return report, metrics, nil
}
